package auth

import (
	"errors"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the gateway bearer token claims. The subject is the participant ID.
type Claims struct {
	ParticipantType conversation.ParticipantType `json:"participant_type"`

	jwt.RegisteredClaims
}

// NewClaims builds claims for p valid for ttl from now.
func NewClaims(p conversation.Participant, issuer string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		ParticipantType: p.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Participant returns the identity the token was issued for.
func (c *Claims) Participant() conversation.Participant {
	return conversation.Participant{ID: c.Subject, Type: c.ParticipantType}
}

// Identity is the authenticated caller of a gateway request.
type Identity struct {
	Participant conversation.Participant
	ExpiresAt   time.Time
}

// IdentityFromClaims validates the claim shape and converts it to an Identity.
func IdentityFromClaims(c *Claims) (Identity, error) {
	p := c.Participant()
	if p.ID == "" || !p.Type.IsValid() {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{Participant: p}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}
