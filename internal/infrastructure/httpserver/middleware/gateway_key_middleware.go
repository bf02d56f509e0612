package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const GatewayKeyHeader = "X-Gateway-Key"

// GatewayKeyMiddleware guards backend-to-gateway endpoints with a shared secret.
type GatewayKeyMiddleware struct {
	key    []byte
	logger *logrus.Logger
}

func NewGatewayKeyMiddleware(key string, logger *logrus.Logger) *GatewayKeyMiddleware {
	return &GatewayKeyMiddleware{key: []byte(key), logger: logger}
}

// RequireKey rejects every request when no key is configured.
func (m *GatewayKeyMiddleware) RequireKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(m.key) == 0 {
				return echo.NewHTTPError(http.StatusForbidden, "publishing is disabled")
			}
			got := []byte(c.Request().Header.Get(GatewayKeyHeader))
			if subtle.ConstantTimeCompare(got, m.key) != 1 {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path}).Warn("rejected publish with bad gateway key")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid gateway key")
			}
			return next(c)
		}
	}
}
