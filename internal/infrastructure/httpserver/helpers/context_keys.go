package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
)

type ctxKey string

const (
	keyIdentity ctxKey = "identity"
	keyToken    ctxKey = "token"
)

func SetIdentity(c echo.Context, id auth.Identity) { c.Set(string(keyIdentity), id) }
func GetIdentityRaw(c echo.Context) (auth.Identity, bool) {
	v := c.Get(string(keyIdentity))
	id, ok := v.(auth.Identity)
	return id, ok
}

func SetToken(c echo.Context, token string) { c.Set(string(keyToken), token) }
func GetTokenRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyToken))
	s, ok := v.(string)
	return s, ok
}
