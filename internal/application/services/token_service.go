package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs and verifies HS256 participant tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
	now        func() time.Time
}

var _ ports.TokenService = (*TokenService)(nil)

func NewTokenService(secret, issuer string, defaultTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, defaultTTL: defaultTTL, now: time.Now}, nil
}

// IssueToken signs a token for p. A zero ttl uses the configured default.
func (s *TokenService) IssueToken(p conversation.Participant, ttl time.Duration) (string, error) {
	if p.ID == "" || !p.Type.IsValid() {
		return "", fmt.Errorf("issue token: %w", conversation.ErrInvalidParticipant)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	claims := auth.NewClaims(p, s.issuer, s.now(), ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) ValidateToken(_ context.Context, tokenString string) (*auth.Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, auth.ErrInvalidToken
	}
	claims, ok := token.Claims.(*auth.Claims)
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	if _, err := auth.IdentityFromClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}
