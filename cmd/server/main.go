package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/avatarctic/realtime-core/configs"
	"github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/infrastructure/gateway"
	"github.com/avatarctic/realtime-core/internal/infrastructure/health"
	"github.com/avatarctic/realtime-core/internal/infrastructure/httpserver"
	"github.com/avatarctic/realtime-core/internal/infrastructure/redis"
	"github.com/avatarctic/realtime-core/internal/infrastructure/repositories"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting realtime gateway...")

	ctx := context.Background()

	// Cache service owns the Redis connection shared by the broker, limiter and health checks.
	cacheService, err := redis.NewCacheService(&cfg.Redis, &cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Invalid cache configuration:", err)
	}
	if err := cacheService.Connect(ctx); err != nil {
		if cfg.Gateway.UseRedisBroker {
			logger.Fatal("Failed to connect to Redis:", err)
		}
		logger.WithError(err).Warn("Redis unavailable, running single-node without cache")
	}
	defer func() { _ = cacheService.Disconnect() }()
	redisClient, redisErr := cacheService.Client()

	// Conversation directory: backend REST behind the cache, or a static seed for dev.
	var directory ports.ConversationDirectory
	if cfg.Gateway.DirectoryURL != "" {
		rest, err := repositories.NewRESTConversationDirectory(cfg.Gateway.DirectoryURL, cfg.Gateway.DirectoryToken, cfg.Gateway.DirectoryTimeout)
		if err != nil {
			logger.Fatal("Invalid directory configuration:", err)
		}
		directory = repositories.NewCachingConversationDirectory(rest, cacheService, cfg.Gateway.DirectoryTTL, logger)
		logger.WithField("url", cfg.Gateway.DirectoryURL).Info("Using REST conversation directory")
	} else {
		seed, err := repositories.ParseSeedConversations(cfg.Gateway.SeedConversations)
		if err != nil {
			logger.Fatal("Invalid seed conversations:", err)
		}
		static, err := repositories.NewStaticConversationDirectory(seed...)
		if err != nil {
			logger.Fatal("Invalid seed conversations:", err)
		}
		directory = static
		logger.WithField("conversations", len(seed)).Info("Using static conversation directory")
	}

	var broker gateway.Broker = gateway.NewLocalBroker()
	if cfg.Gateway.UseRedisBroker {
		broker = gateway.NewRedisBroker(redisClient, cfg.Gateway.ChannelPrefix, logger)
		logger.WithField("prefix", cfg.Gateway.ChannelPrefix).Info("Using Redis broker")
	}
	defer func() { _ = broker.Close() }()

	hub := gateway.NewHub(directory, broker, gateway.HubOptions{
		FramesPerSecond: cfg.Gateway.FramesPerSecond,
		FrameBurst:      cfg.Gateway.FrameBurst,
	}, logger)

	tokenService, err := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		logger.Fatal("Invalid JWT configuration:", err)
	}

	hcSlice := []ports.HealthChecker{health.NewCacheHealthChecker(cacheService)}
	var rateLimiterService ports.RateLimiterService
	if redisErr == nil {
		rateLimiterService = services.NewRateLimiterService(repositories.NewRateLimitRedisRepository(redisClient), &services.RateLimiterConfig{
			RequestsPerWindow: cfg.Gateway.PublishPerMinute,
			Window:            time.Minute,
		}, logger)
		hcSlice = append(hcSlice, health.NewRedisHealthChecker(redisClient))
	}

	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		GatewayPath:    cfg.Gateway.Path,
		PollWait:       cfg.Gateway.PollWait,
	}

	deps := httpserver.ServerDeps{
		Hub:                hub,
		TokenService:       tokenService,
		RateLimiterService: rateLimiterService,
		PublishKey:         cfg.Gateway.PublishKey,
		HealthCheckers:     hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepIdleSessions(sweepCtx, hub, cfg.Gateway.SessionIdleTTL)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx, "server shutting down"); err != nil {
		logger.Error("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

// sweepIdleSessions closes polling sessions abandoned by their clients.
func sweepIdleSessions(ctx context.Context, hub *gateway.Hub, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hub.SweepIdle(now, ttl)
		}
	}
}
