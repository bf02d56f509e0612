package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	config "github.com/avatarctic/realtime-core/configs"
	cacheredis "github.com/avatarctic/realtime-core/internal/infrastructure/redis"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hc := NewRedisHealthChecker(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Check(context.Background()))

	mr.Close()
	assert.Error(t, hc.Check(context.Background()))
}

func TestCacheHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	svc, err := cacheredis.NewCacheService(&config.RedisConfig{Host: mr.Host(), Port: mr.Port()}, &config.CacheConfig{KeyPrefix: "hc"}, nil)
	require.NoError(t, err)

	hc := NewCacheHealthChecker(svc)
	assert.Equal(t, "cache", hc.Name())
	// Test: not connected yet
	assert.ErrorIs(t, hc.Check(context.Background()), ErrCacheUnavailable)

	require.NoError(t, svc.Connect(context.Background()))
	t.Cleanup(func() { _ = svc.Disconnect() })
	assert.NoError(t, hc.Check(context.Background()))
}
