package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	impl "github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/mocks"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUntilBurst(t *testing.T) {
	count := 0
	start := time.Unix(1_700_000_000, 0).Truncate(time.Minute)
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
		assert.Equal(t, "conv-1", subject)
		assert.Equal(t, "rl:test", keyPrefix)
		assert.Equal(t, 2*window, ttl)
		count++
		return count, start, nil
	}}
	svc := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{RequestsPerWindow: 2, BurstMultiplier: 1.5, KeyPrefix: "rl:test"}, nil)

	for i := 0; i < 3; i++ {
		allowed, remaining, limit, reset, err := svc.Allow(context.Background(), "conv-1")
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
		assert.Equal(t, 2, limit)
		assert.Equal(t, start.Add(time.Minute), reset)
	}
	allowed, remaining, _, _, err := svc.Allow(context.Background(), "conv-1")
	assert.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
		return 0, time.Now(), errors.New("store down")
	}}
	svc := impl.NewRateLimiterService(repo, nil, nil)
	allowed, _, limit, _, err := svc.Allow(context.Background(), "x")
	assert.Error(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 600, limit)
}
