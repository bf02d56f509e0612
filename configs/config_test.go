package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache", cfg.Cache.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 1024, cfg.Cache.CompressionThreshold)
	assert.Equal(t, []string{"websocket", "polling"}, cfg.Messaging.Transports)
	assert.Equal(t, 3*time.Second, cfg.Messaging.TypingTimeout)
	assert.Equal(t, 600, cfg.Gateway.PublishPerMinute)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_DEFAULT_TTL", "90")
	t.Setenv("MESSAGING_RECONNECT_DELAY", "250ms")
	t.Setenv("MESSAGING_TRANSPORTS", " polling , ,websocket")
	t.Setenv("CACHE_ENABLE_COMPRESSION", "false")
	t.Setenv("GATEWAY_FRAMES_PER_SECOND", "2.5")
	// Test: unparsable values keep the default
	t.Setenv("REDIS_POOL_SIZE", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Messaging.ReconnectDelay)
	assert.Equal(t, []string{"polling", "websocket"}, cfg.Messaging.Transports)
	assert.False(t, cfg.Cache.EnableCompression)
	assert.Equal(t, 2.5, cfg.Gateway.FramesPerSecond)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}
