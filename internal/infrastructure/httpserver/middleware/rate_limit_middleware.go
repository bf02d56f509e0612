package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/realtime-core/internal/core/ports"
)

type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiterService
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiterService, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, logger: logger}
}

// ByParam limits requests per value of the named path parameter. Without a limiter
// configured every request passes.
func (r *RateLimitMiddleware) ByParam(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := c.Param(param)
			if r.rateLimiter == nil || subject == "" {
				return next(c)
			}

			allowed, remaining, limit, reset, err := r.rateLimiter.Allow(c.Request().Context(), subject)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if err != nil {
				if r.logger != nil {
					r.logger.WithError(err).WithField(param, subject).Warn("rate limiter unavailable, request allowed")
				}
				return next(c)
			}
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfter(reset)))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// retryAfter is the whole seconds until reset, at least one.
func retryAfter(reset time.Time) int {
	secs := int(math.Ceil(time.Until(reset).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
