package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	JWT        *JWTMiddleware
	GatewayKey *GatewayKeyMiddleware
	Logging    *LoggingMiddleware
	RateLimit  *RateLimitMiddleware
	Metrics    *MetricsMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	tokenService ports.TokenService,
	rateLimiterService ports.RateLimiterService,
	publishKey string,
	logger *logrus.Logger,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		JWT:        NewJWTMiddleware(tokenService, logger),
		GatewayKey: NewGatewayKeyMiddleware(publishKey, logger),
		Logging:    NewLoggingMiddleware(logger),
		RateLimit:  NewRateLimitMiddleware(rateLimiterService, logger),
		Metrics:    NewMetricsMiddleware(requestsTotal, requestDuration),
	}
}
