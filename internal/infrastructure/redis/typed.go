package redis

import (
	"context"

	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// GetAs is the typed form of Cache.Get.
func GetAs[T any](ctx context.Context, c ports.Cache, key string, opts ...ports.GetOption) (T, bool) {
	var v T
	if c == nil {
		return v, false
	}
	ok := c.Get(ctx, key, &v, opts...)
	return v, ok
}

// GetOrSet is the typed form of Cache.GetOrSet.
func GetOrSet[T any](ctx context.Context, c ports.Cache, key string, factory func(ctx context.Context) (T, error), opts ...ports.SetOption) (T, error) {
	var v T
	if c == nil {
		return factory(ctx)
	}
	err := c.GetOrSet(ctx, key, &v, func(ctx context.Context) (any, error) {
		return factory(ctx)
	}, opts...)
	return v, err
}
