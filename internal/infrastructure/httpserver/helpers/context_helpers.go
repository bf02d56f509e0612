package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

func GetIdentityFromContext(c echo.Context) (auth.Identity, error) {
	id, ok := GetIdentityRaw(c)
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid identity context")
	}
	return id, nil
}

func GetParticipantFromContext(c echo.Context) (conversation.Participant, error) {
	id, err := GetIdentityFromContext(c)
	if err != nil {
		return conversation.Participant{}, err
	}
	return id.Participant, nil
}

// GetJWTTokenFromContext reads the bearer token. Browsers cannot set headers on a
// websocket handshake, so an access_token query parameter is accepted as well.
func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("access_token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}
