package services_test

import (
	"context"
	"testing"
	"time"

	impl "github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coach = conversation.Participant{ID: "coach-1", Type: conversation.ParticipantCoach}

func TestIssueAndValidateToken(t *testing.T) {
	svc, err := impl.NewTokenService("s3cret", "realtime", time.Hour)
	require.NoError(t, err)

	tok, err := svc.IssueToken(coach, 0)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, coach, claims.Participant())
	assert.Equal(t, "realtime", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, err := impl.NewTokenService("s3cret", "realtime", time.Hour)
	require.NoError(t, err)
	other, err := impl.NewTokenService("other", "realtime", time.Hour)
	require.NoError(t, err)
	foreignIssuer, err := impl.NewTokenService("s3cret", "someone-else", time.Hour)
	require.NoError(t, err)

	// Test: wrong secret
	tok, err := other.IssueToken(coach, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Test: wrong issuer
	tok, err = foreignIssuer.IssueToken(coach, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Test: expired
	expired := auth.NewClaims(coach, "realtime", time.Now().Add(-2*time.Hour), time.Hour)
	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Test: alg none
	tok, err = jwt.NewWithClaims(jwt.SigningMethodNone, auth.NewClaims(coach, "realtime", time.Now(), time.Hour)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Test: signed but without a participant type
	bare := auth.NewClaims(conversation.Participant{ID: "x"}, "realtime", time.Now(), time.Hour)
	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, bare).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.ValidateToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_Validation(t *testing.T) {
	_, err := impl.NewTokenService("", "", 0)
	assert.Error(t, err)

	svc, err := impl.NewTokenService("s3cret", "", 0)
	require.NoError(t, err)
	_, err = svc.IssueToken(conversation.Participant{ID: "x", Type: "robot"}, 0)
	assert.ErrorIs(t, err, conversation.ErrInvalidParticipant)
}
