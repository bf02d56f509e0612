package configs

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Gateway   GatewayConfig
	Messaging MessagingConfig
	JWT       JWTConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string

	// Browser origins allowed for CORS and websocket upgrades; empty allows any.
	AllowedOrigins []string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

// CacheConfig controls key namespacing, expiry and value encoding of the cache service.
type CacheConfig struct {
	KeyPrefix            string
	DefaultTTL           time.Duration
	EnableCompression    bool
	CompressionThreshold int    // bytes; values strictly larger are compressed
	CompressionCodec     string // gzip or zstd
	ScanCount            int64  // per-iteration SCAN COUNT hint
	SingleFlight         bool   // coalesce concurrent GetOrSet misses per key
}

type GatewayConfig struct {
	Path            string
	PublishKey      string // shared secret for backend publish calls
	ChannelPrefix   string
	UseRedisBroker  bool
	FramesPerSecond float64
	FrameBurst      int
	PollWait        time.Duration
	SessionIdleTTL  time.Duration
	// Conversations seeded into the static directory, "id=type:pid,type:pid;id2=..."
	SeedConversations string
	DirectoryURL      string
	DirectoryToken    string
	DirectoryTimeout  time.Duration
	DirectoryTTL      time.Duration
	// Fixed-window limit on backend publish calls, per conversation.
	PublishPerMinute int
}

type MessagingConfig struct {
	URL               string
	Path              string
	Token             string
	Transports        []string
	Timeout           time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	TypingTimeout     time.Duration
	TypingStopMargin  time.Duration
	TypingSweep       time.Duration
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", nil),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Cache: CacheConfig{
			KeyPrefix:            getEnv("CACHE_KEY_PREFIX", "cache"),
			DefaultTTL:           getDurationEnv("CACHE_DEFAULT_TTL", time.Hour),
			EnableCompression:    getBoolEnv("CACHE_ENABLE_COMPRESSION", true),
			CompressionThreshold: getIntEnv("CACHE_COMPRESSION_THRESHOLD", 1024),
			CompressionCodec:     getEnv("CACHE_COMPRESSION_CODEC", "gzip"),
			ScanCount:            int64(getIntEnv("CACHE_SCAN_COUNT", 100)),
			SingleFlight:         getBoolEnv("CACHE_SINGLE_FLIGHT", false),
		},
		Gateway: GatewayConfig{
			Path:              getEnv("GATEWAY_PATH", "/gateway"),
			PublishKey:        getEnv("GATEWAY_PUBLISH_KEY", ""),
			ChannelPrefix:     getEnv("GATEWAY_CHANNEL_PREFIX", "gateway"),
			UseRedisBroker:    getBoolEnv("GATEWAY_REDIS_BROKER", false),
			FramesPerSecond:   getFloatEnv("GATEWAY_FRAMES_PER_SECOND", 20),
			FrameBurst:        getIntEnv("GATEWAY_FRAME_BURST", 40),
			PollWait:          getDurationEnv("GATEWAY_POLL_WAIT", 25*time.Second),
			SessionIdleTTL:    getDurationEnv("GATEWAY_SESSION_IDLE_TTL", time.Minute),
			SeedConversations: getEnv("GATEWAY_SEED_CONVERSATIONS", ""),
			DirectoryURL:      getEnv("GATEWAY_DIRECTORY_URL", ""),
			DirectoryToken:    getEnv("GATEWAY_DIRECTORY_TOKEN", ""),
			DirectoryTimeout:  getDurationEnv("GATEWAY_DIRECTORY_TIMEOUT", 5*time.Second),
			DirectoryTTL:      getDurationEnv("GATEWAY_DIRECTORY_TTL", 5*time.Minute),
			PublishPerMinute:  getIntEnv("GATEWAY_PUBLISH_PER_MINUTE", 600),
		},
		Messaging: MessagingConfig{
			URL:               getEnv("MESSAGING_URL", "http://localhost:8080"),
			Path:              getEnv("MESSAGING_PATH", "/gateway"),
			Token:             getEnv("MESSAGING_TOKEN", ""),
			Transports:        getListEnv("MESSAGING_TRANSPORTS", []string{"websocket", "polling"}),
			Timeout:           getDurationEnv("MESSAGING_TIMEOUT", 20*time.Second),
			ReconnectAttempts: getIntEnv("MESSAGING_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    getDurationEnv("MESSAGING_RECONNECT_DELAY", time.Second),
			TypingTimeout:     getDurationEnv("MESSAGING_TYPING_TIMEOUT", 3*time.Second),
			TypingStopMargin:  getDurationEnv("MESSAGING_TYPING_STOP_MARGIN", 500*time.Millisecond),
			TypingSweep:       getDurationEnv("MESSAGING_TYPING_SWEEP", time.Second),
		},
		JWT: JWTConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			Issuer:   getEnv("JWT_ISSUER", ""),
			TokenTTL: getDurationEnv("JWT_TOKEN_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("90s") and bare integers, which are read as seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
