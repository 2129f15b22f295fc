// Package serial allocates the pre-policy serial numbers assigned when an
// application is first recorded.
package serial

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	prefix     = "SN"
	counterKey = "policydesk:serial"
)

// Format renders sequence number n as a serial, e.g. SN0000042.
func Format(n int64) string {
	return fmt.Sprintf("%s%07d", prefix, n)
}

// InMemory hands out serials from a process-local counter.
type InMemory struct {
	mu   sync.Mutex
	next int64
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (a *InMemory) Next(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return Format(a.next), nil
}

// RedisAllocator uses INCR on a shared key so every server instance draws from
// the same sequence.
type RedisAllocator struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable) *RedisAllocator {
	return &RedisAllocator{client: client, key: counterKey}
}

func (a *RedisAllocator) Next(ctx context.Context) (string, error) {
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return "", fmt.Errorf("allocate serial: %w", err)
	}
	return Format(n), nil
}
