package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	config "github.com/avatarctic/realtime-core/configs"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/infrastructure/compress"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL       = time.Hour
	defaultScanCount = 100
	tagNamespace     = "__tag__"
)

// CacheService implements ports.Cache on top of a Redis client it owns.
// It is constructed once at startup, connected explicitly and injected into consumers.
type CacheService struct {
	redisCfg config.RedisConfig
	cfg      config.CacheConfig
	codec    compress.Compressor
	logger   *logrus.Logger

	mu     sync.RWMutex
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
	flight singleflight.Group
}

var _ ports.Cache = (*CacheService)(nil)

// NewCacheService validates the configuration and returns a disconnected service.
func NewCacheService(redisCfg *config.RedisConfig, cacheCfg *config.CacheConfig, logger *logrus.Logger) (*CacheService, error) {
	if redisCfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	cfg := config.CacheConfig{}
	if cacheCfg != nil {
		cfg = *cacheCfg
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = defaultScanCount
	}
	codec, err := compress.ByName(cfg.CompressionCodec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CacheService{redisCfg: *redisCfg, cfg: cfg, codec: codec, logger: logger}, nil
}

// Connect dials the store. Calling it on a connected service is a no-op.
func (c *CacheService) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	client, err := NewRedisClient(ctx, &c.redisCfg)
	if err != nil {
		return err
	}
	c.client = client
	c.logger.WithFields(logrus.Fields{"addr": client.Options().Addr, "db": c.redisCfg.DB, "prefix": c.cfg.KeyPrefix}).Info("cache connected")
	return nil
}

// Disconnect closes the client and clears the handle; later operations fail fast.
func (c *CacheService) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.logger.Info("cache disconnected")
	return err
}

// Client exposes the underlying handle for components sharing the connection (health, broker).
func (c *CacheService) Client() (*redis.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ports.ErrNotInitialized
	}
	return c.client, nil
}

func (c *CacheService) namespaced(key string) string {
	if c.cfg.KeyPrefix == "" {
		return key
	}
	return c.cfg.KeyPrefix + ":" + key
}

func (c *CacheService) logical(key string) string {
	if c.cfg.KeyPrefix == "" {
		return key
	}
	return strings.TrimPrefix(key, c.cfg.KeyPrefix+":")
}

// tagKey is the set indexing the keys carrying tag. Logical keys may not start with the
// tag namespace, so an index never aliases a value.
func (c *CacheService) tagKey(tag string) string {
	return c.namespaced(tagNamespace + ":" + tag)
}

func reserved(key string) bool {
	return strings.HasPrefix(key, tagNamespace+":")
}

func (c *CacheService) warn(op, key string, err error) {
	cacheErrors.WithLabelValues(op).Inc()
	c.logger.WithFields(logrus.Fields{"op": op, "key": key}).WithError(err).Warn("cache operation degraded")
}

func (c *CacheService) Get(ctx context.Context, key string, dest any, opts ...ports.GetOption) bool {
	client, err := c.Client()
	if err != nil {
		c.warn("get", key, err)
		return false
	}
	raw, err := client.Get(ctx, c.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		cacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		c.warn("get", key, err)
		return false
	}
	payload := c.decode(raw, ports.ApplyGetOptions(opts))
	if err := json.Unmarshal(payload, dest); err != nil {
		c.warn("get", key, fmt.Errorf("decode value: %w", err))
		return false
	}
	c.hits.Add(1)
	cacheLookups.WithLabelValues("hit").Inc()
	return true
}

// decode tries decompression first and falls back to the raw bytes, so entries written
// under another compression setting stay readable.
func (c *CacheService) decode(raw []byte, o ports.CacheGetOptions) []byte {
	try := c.cfg.EnableCompression
	if o.Decompress != nil {
		try = *o.Decompress
	}
	if !try {
		return raw
	}
	out, err := c.codec.Decode(raw)
	if err != nil {
		return raw
	}
	return out
}

func (c *CacheService) Set(ctx context.Context, key string, value any, opts ...ports.SetOption) error {
	client, err := c.Client()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %q: %w", key, err)
	}
	return c.store(ctx, client, key, payload, ports.ApplySetOptions(opts))
}

// store writes the value and its tag memberships in one MULTI/EXEC so an index entry never
// outlives a failed primary write.
func (c *CacheService) store(ctx context.Context, client *redis.Client, key string, payload []byte, o ports.CacheSetOptions) error {
	if reserved(key) {
		return fmt.Errorf("cache: set %q: %w", key, ports.ErrReservedKey)
	}
	data, err := c.encode(payload, o)
	if err != nil {
		return fmt.Errorf("cache: compress %q: %w", key, err)
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	nk := c.namespaced(key)
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, nk, data, ttl)
		for _, tag := range o.Tags {
			pipe.SAdd(ctx, c.tagKey(tag), nk)
		}
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		c.logger.WithFields(logrus.Fields{"key": key, "tags": o.Tags}).WithError(err).Error("cache write failed")
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// encode compresses only when enabled and the payload is strictly larger than the threshold.
func (c *CacheService) encode(payload []byte, o ports.CacheSetOptions) ([]byte, error) {
	enabled := c.cfg.EnableCompression
	if o.Compress != nil {
		enabled = *o.Compress
	}
	if !enabled || len(payload) <= c.cfg.CompressionThreshold {
		return payload, nil
	}
	cacheCompressed.Inc()
	return c.codec.Encode(payload)
}

// GetOrSet is read-through: on a miss factory runs, its result is stored and decoded into
// dest. Concurrent misses each run factory unless single-flight is enabled. A failed store
// is logged and the computed value is still returned.
func (c *CacheService) GetOrSet(ctx context.Context, key string, dest any, factory func(ctx context.Context) (any, error), opts ...ports.SetOption) error {
	if c.Get(ctx, key, dest) {
		return nil
	}
	load := func() (any, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cache: marshal %q: %w", key, err)
		}
		if client, err := c.Client(); err != nil {
			c.warn("get_or_set", key, err)
		} else if err := c.store(ctx, client, key, payload, ports.ApplySetOptions(opts)); err != nil {
			c.logger.WithField("key", key).WithError(err).Warn("get_or_set: returning uncached value")
		}
		return payload, nil
	}

	var (
		res any
		err error
	)
	if c.cfg.SingleFlight {
		res, err, _ = c.flight.Do(key, load)
	} else {
		res, err = load()
	}
	if err != nil {
		return err
	}
	payload, ok := res.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type from cache loader")
	}
	return json.Unmarshal(payload, dest)
}

func (c *CacheService) Del(ctx context.Context, key string) bool {
	return c.DelMany(ctx, key) > 0
}

func (c *CacheService) DelMany(ctx context.Context, keys ...string) int64 {
	if len(keys) == 0 {
		return 0
	}
	client, err := c.Client()
	if err != nil {
		c.warn("del", strings.Join(keys, ","), err)
		return 0
	}
	nks := make([]string, len(keys))
	for i, k := range keys {
		nks[i] = c.namespaced(k)
	}
	n, err := client.Del(ctx, nks...).Result()
	if err != nil {
		c.warn("del", strings.Join(keys, ","), err)
		return 0
	}
	return n
}

// DelByPattern walks the keyspace with SCAN (bounded COUNT per step) and deletes each batch,
// until the cursor wraps back to 0.
func (c *CacheService) DelByPattern(ctx context.Context, pattern string) int64 {
	client, err := c.Client()
	if err != nil {
		c.warn("del_pattern", pattern, err)
		return 0
	}
	match := c.namespaced(pattern)
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, match, c.cfg.ScanCount).Result()
		if err != nil {
			c.warn("del_pattern", pattern, err)
			return deleted
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				c.warn("del_pattern", pattern, err)
				return deleted
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.WithFields(logrus.Fields{"pattern": pattern, "deleted": deleted}).Debug("cache pattern invalidation")
	return deleted
}

// DelByTag deletes every key indexed under tag and then the index itself.
// Returns the number of member keys removed; an unknown tag yields 0.
func (c *CacheService) DelByTag(ctx context.Context, tag string) int64 {
	client, err := c.Client()
	if err != nil {
		c.warn("del_tag", tag, err)
		return 0
	}
	tk := c.tagKey(tag)
	members, err := client.SMembers(ctx, tk).Result()
	if err != nil {
		c.warn("del_tag", tag, err)
		return 0
	}
	if len(members) == 0 {
		return 0
	}
	var del *redis.IntCmd
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, members...)
		pipe.Del(ctx, tk)
		return nil
	})
	if err != nil {
		c.warn("del_tag", tag, err)
		return 0
	}
	c.logger.WithFields(logrus.Fields{"tag": tag, "deleted": del.Val()}).Debug("cache tag invalidation")
	return del.Val()
}

func (c *CacheService) Exists(ctx context.Context, key string) bool {
	client, err := c.Client()
	if err != nil {
		c.warn("exists", key, err)
		return false
	}
	n, err := client.Exists(ctx, c.namespaced(key)).Result()
	if err != nil {
		c.warn("exists", key, err)
		return false
	}
	return n > 0
}

func (c *CacheService) TTL(ctx context.Context, key string) int64 {
	client, err := c.Client()
	if err != nil {
		c.warn("ttl", key, err)
		return -1
	}
	d, err := client.TTL(ctx, c.namespaced(key)).Result()
	if err != nil {
		c.warn("ttl", key, err)
		return -1
	}
	// go-redis reports the -1/-2 sentinels unscaled
	switch {
	case d == -2 || d == -2*time.Second:
		return -2
	case d < 0:
		return -1
	}
	return int64(d / time.Second)
}

func (c *CacheService) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := c.Client()
	if err != nil {
		return false, err
	}
	ok, err := client.Expire(ctx, c.namespaced(key), ttl).Result()
	if err != nil {
		cacheErrors.WithLabelValues("expire").Inc()
		c.logger.WithField("key", key).WithError(err).Error("cache expire failed")
		return false, fmt.Errorf("cache: expire %q: %w", key, err)
	}
	return ok, nil
}

func (c *CacheService) Scan(ctx context.Context, pattern string, cursor uint64, count int64) ([]string, uint64) {
	client, err := c.Client()
	if err != nil {
		c.warn("scan", pattern, err)
		return nil, 0
	}
	if count <= 0 {
		count = c.cfg.ScanCount
	}
	keys, next, err := client.Scan(ctx, cursor, c.namespaced(pattern), count).Result()
	if err != nil {
		c.warn("scan", pattern, err)
		return nil, 0
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.logical(k)
	}
	return out, next
}

// Flush wipes the selected database. Irreversible, so it always logs at error severity.
func (c *CacheService) Flush(ctx context.Context) error {
	client, err := c.Client()
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"db": c.redisCfg.DB, "prefix": c.cfg.KeyPrefix}).Error("flushing entire cache database")
	if err := client.FlushDB(ctx).Err(); err != nil {
		cacheErrors.WithLabelValues("flush").Inc()
		return fmt.Errorf("cache: flush: %w", err)
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

func (c *CacheService) HealthCheck(ctx context.Context) bool {
	client, err := c.Client()
	if err != nil {
		return false
	}
	return client.Ping(ctx).Err() == nil
}
