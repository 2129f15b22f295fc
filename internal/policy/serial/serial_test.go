package serial

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "SN0000001", Format(1))
	assert.Equal(t, "SN1234567", Format(1234567))
}

func TestInMemoryAllocatesDistinctSerials(t *testing.T) {
	alloc := NewInMemory()
	ctx := context.Background()

	const workers = 100
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := alloc.Next(ctx)
			assert.NoError(t, err)
			mu.Lock()
			seen[s] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers)
}
