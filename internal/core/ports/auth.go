package ports

import (
	"context"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

// TokenService issues and validates gateway bearer tokens.
type TokenService interface {
	IssueToken(p conversation.Participant, ttl time.Duration) (string, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}
