package health

import (
	"context"
	"errors"

	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/go-redis/redis/v8"
)

var ErrCacheUnavailable = errors.New("cache unavailable")

// cacheHealthChecker checks the cache service.
type cacheHealthChecker struct{ cache ports.Cache }

func (c *cacheHealthChecker) Name() string { return "cache" }
func (c *cacheHealthChecker) Check(ctx context.Context) error {
	if !c.cache.HealthCheck(ctx) {
		return ErrCacheUnavailable
	}
	return nil
}

// redisHealthChecker wraps the redis client for health checks.
type redisHealthChecker struct{ client *redis.Client }

func (r *redisHealthChecker) Name() string                    { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// NewCacheHealthChecker creates a health checker for the cache service.
func NewCacheHealthChecker(cache ports.Cache) ports.HealthChecker {
	return &cacheHealthChecker{cache: cache}
}

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client *redis.Client) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}
