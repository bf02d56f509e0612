package httpserver

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/infrastructure/gateway"
	customMiddleware "github.com/avatarctic/realtime-core/internal/infrastructure/httpserver/middleware"
)

const (
	defaultGatewayPath = "/gateway"
	defaultPollWait    = 25 * time.Second
	wsBufferSize       = 32 * 1024
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	GatewayPath    string
	PollWait       time.Duration
}

type ServerDeps struct {
	Hub                *gateway.Hub
	TokenService       ports.TokenService
	RateLimiterService ports.RateLimiterService
	PublishKey         string
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	hub            *gateway.Hub
	upgrader       websocket.Upgrader
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	cfg := *serverConfig
	if cfg.GatewayPath == "" {
		cfg.GatewayPath = defaultGatewayPath
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = defaultPollWait
	}

	server := &Server{
		echo:           e,
		config:         &cfg,
		logger:         logger,
		hub:            deps.Hub,
		healthCheckers: deps.HealthCheckers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.TokenService,
			deps.RateLimiterService,
			deps.PublishKey,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
