package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/infrastructure/httpserver/helpers"
)

type JWTMiddleware struct {
	tokenService ports.TokenService
	logger       *logrus.Logger
}

func NewJWTMiddleware(tokenService ports.TokenService, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{tokenService: tokenService, logger: logger}
}

// RequireJWT validates the bearer token and sets the caller identity.
func (m *JWTMiddleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.tokenService.ValidateToken(c.Request().Context(), tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			identity, err := auth.IdentityFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			helpers.SetIdentity(c, identity)
			helpers.SetToken(c, tokenString)

			if m.logger != nil {
				m.logger.WithField("participant", identity.Participant.Key()).Debug("jwt validated and identity set")
			}
			return next(c)
		}
	}
}
