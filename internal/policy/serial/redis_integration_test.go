//go:build integration

package serial_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"policydesk/internal/policy/serial"
	"policydesk/pkg/testutil/containers"
)

type RedisAllocatorSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	alloc *serial.RedisAllocator
}

func TestRedisAllocatorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisAllocatorSuite))
}

func (s *RedisAllocatorSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.alloc = serial.NewRedis(s.redis.Client)
}

func (s *RedisAllocatorSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisAllocatorSuite) TestSequenceIsSharedAcrossAllocators() {
	ctx := context.Background()
	other := serial.NewRedis(s.redis.Client)

	first, err := s.alloc.Next(ctx)
	s.Require().NoError(err)
	second, err := other.Next(ctx)
	s.Require().NoError(err)

	s.Equal("SN0000001", first)
	s.Equal("SN0000002", second)
}
