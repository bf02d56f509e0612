package ports

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotInitialized is returned by operations invoked before Connect or after Disconnect.
	ErrNotInitialized = errors.New("cache client not initialized: call Connect first")
	// ErrReservedKey is returned when a write targets the namespace holding tag indexes.
	ErrReservedKey = errors.New("cache key is in the reserved tag namespace")
)

// Cache defines the key-value cache contract used by backend services.
// Read, delete and stat operations degrade gracefully (false/0/empty, cause logged) so that
// callers fall back to their primary datastore. Only Set, Expire and Flush return errors.
type Cache interface {
	// Get decodes the value stored at key into dest. ok=false when absent or unreadable.
	Get(ctx context.Context, key string, dest any, opts ...GetOption) bool
	// Set serializes value and stores it, compressing when large enough and indexing tags.
	Set(ctx context.Context, key string, value any, opts ...SetOption) error
	// GetOrSet decodes the cached value into dest or, on a miss, stores and decodes the
	// result of factory.
	GetOrSet(ctx context.Context, key string, dest any, factory func(ctx context.Context) (any, error), opts ...SetOption) error

	Del(ctx context.Context, key string) bool
	DelMany(ctx context.Context, keys ...string) int64
	// DelByPattern deletes every key matching the glob using a cursor scan.
	DelByPattern(ctx context.Context, pattern string) int64
	// DelByTag deletes every key indexed under tag plus the index itself.
	DelByTag(ctx context.Context, tag string) int64

	Exists(ctx context.Context, key string) bool
	// TTL returns remaining seconds, -1 when the key has no expiry or on error, -2 when absent.
	TTL(ctx context.Context, key string) int64
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Scan exposes one cursor step. Returned keys have the namespace prefix stripped.
	Scan(ctx context.Context, pattern string, cursor uint64, count int64) ([]string, uint64)
	// Flush wipes the whole logical database and resets hit/miss counters.
	Flush(ctx context.Context) error
	Stats(ctx context.Context) CacheStats
	HealthCheck(ctx context.Context) bool
}

// CacheStats combines process-lifetime counters with figures queried live from the store.
// Store-derived fields are left zero when the status report cannot be parsed.
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Keys          int64   `json:"keys"`
	Memory        string  `json:"memory,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds,omitempty"`
}

// CacheSetOptions are the per-call overrides for Set and GetOrSet.
type CacheSetOptions struct {
	TTL      time.Duration // 0 = configured default
	Tags     []string
	Compress *bool // nil = configured default
}

type SetOption func(*CacheSetOptions)

// WithTTL overrides the default expiry. Values below one second are rounded up by the store.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *CacheSetOptions) { o.TTL = ttl }
}

// WithTags indexes the key under each tag for DelByTag.
func WithTags(tags ...string) SetOption {
	return func(o *CacheSetOptions) { o.Tags = append(o.Tags, tags...) }
}

func WithCompression(enabled bool) SetOption {
	return func(o *CacheSetOptions) { o.Compress = &enabled }
}

type CacheGetOptions struct {
	Decompress *bool // nil = try decompression when enabled
}

type GetOption func(*CacheGetOptions)

// WithDecompression forces (or skips) the decompression attempt on read.
func WithDecompression(enabled bool) GetOption {
	return func(o *CacheGetOptions) { o.Decompress = &enabled }
}

func ApplySetOptions(opts []SetOption) CacheSetOptions {
	var o CacheSetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func ApplyGetOptions(opts []GetOption) CacheGetOptions {
	var o CacheGetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
