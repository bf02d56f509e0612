package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/sirupsen/logrus"
)

var (
	ErrFlushNotConfirmed = errors.New("flush must be confirmed")
	ErrEmptySelector     = errors.New("pattern or tag must not be empty")
)

// CacheAdminService exposes the operator side of the cache: inspection and invalidation.
type CacheAdminService struct {
	cache  ports.Cache
	logger *logrus.Logger
}

func NewCacheAdminService(cache ports.Cache, logger *logrus.Logger) *CacheAdminService {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CacheAdminService{cache: cache, logger: logger}
}

func (s *CacheAdminService) Stats(ctx context.Context) ports.CacheStats {
	return s.cache.Stats(ctx)
}

// Get returns the raw JSON document stored at key.
func (s *CacheAdminService) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	var raw json.RawMessage
	if !s.cache.Get(ctx, key, &raw) {
		return nil, false
	}
	return raw, true
}

// Keys walks the keyspace with the cursor scan, stopping after limit keys (0 = all).
func (s *CacheAdminService) Keys(ctx context.Context, pattern string, limit int) []string {
	if pattern == "" {
		pattern = "*"
	}
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next := s.cache.Scan(ctx, pattern, cursor, 0)
		out = append(out, keys...)
		if limit > 0 && len(out) >= limit {
			return out[:limit]
		}
		if next == 0 {
			return out
		}
		cursor = next
	}
}

func (s *CacheAdminService) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, ErrEmptySelector
	}
	n := s.cache.DelByPattern(ctx, pattern)
	s.logger.WithFields(logrus.Fields{"pattern": pattern, "deleted": n}).Info("cache invalidated by pattern")
	return n, nil
}

func (s *CacheAdminService) InvalidateTag(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		return 0, ErrEmptySelector
	}
	n := s.cache.DelByTag(ctx, tag)
	s.logger.WithFields(logrus.Fields{"tag": tag, "deleted": n}).Info("cache invalidated by tag")
	return n, nil
}

// Flush wipes the cache database. It refuses unless confirmed.
func (s *CacheAdminService) Flush(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrFlushNotConfirmed
	}
	return s.cache.Flush(ctx)
}
