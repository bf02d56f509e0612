package mocks

import (
	"context"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// MessagingClientMock is a lightweight mock for MessagingClient
type MessagingClientMock struct {
	IsReadyFn           func() bool
	SelfFn              func() conversation.Participant
	JoinConversationFn  func(conversationID string) bool
	LeaveConversationFn func(conversationID string) bool
	SendTypingStatusFn  func(conversationID string, isTyping bool) bool
	TypingUsersFn       func(conversationID string) []conversation.Participant
}

func (m *MessagingClientMock) IsReady() bool {
	if m.IsReadyFn != nil {
		return m.IsReadyFn()
	}
	return true
}
func (m *MessagingClientMock) Self() conversation.Participant {
	if m.SelfFn != nil {
		return m.SelfFn()
	}
	return conversation.Participant{}
}
func (m *MessagingClientMock) JoinConversation(conversationID string) bool {
	if m.JoinConversationFn != nil {
		return m.JoinConversationFn(conversationID)
	}
	return true
}
func (m *MessagingClientMock) LeaveConversation(conversationID string) bool {
	if m.LeaveConversationFn != nil {
		return m.LeaveConversationFn(conversationID)
	}
	return true
}
func (m *MessagingClientMock) SendTypingStatus(conversationID string, isTyping bool) bool {
	if m.SendTypingStatusFn != nil {
		return m.SendTypingStatusFn(conversationID, isTyping)
	}
	return true
}
func (m *MessagingClientMock) TypingUsers(conversationID string) []conversation.Participant {
	if m.TypingUsersFn != nil {
		return m.TypingUsersFn(conversationID)
	}
	return nil
}

// ConversationDirectoryMock is a lightweight mock for ConversationDirectory
type ConversationDirectoryMock struct {
	GetConversationFn func(ctx context.Context, id string) (*conversation.Conversation, error)
}

func (m *ConversationDirectoryMock) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	if m.GetConversationFn != nil {
		return m.GetConversationFn(ctx, id)
	}
	return nil, ports.ErrConversationNotFound
}

// RateLimitRepositoryMock is a lightweight mock for RateLimitRepository
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, subject, window, keyPrefix, ttl)
	}
	return 1, time.Now().Truncate(window), nil
}

// RateLimiterServiceMock is a lightweight mock for RateLimiterService
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, subject string) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, subject string) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, subject)
	}
	return true, 1, 1, time.Now().Add(time.Minute), nil
}

// TokenServiceMock is a lightweight mock for TokenService
type TokenServiceMock struct {
	IssueTokenFn    func(p conversation.Participant, ttl time.Duration) (string, error)
	ValidateTokenFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (m *TokenServiceMock) IssueToken(p conversation.Participant, ttl time.Duration) (string, error) {
	if m.IssueTokenFn != nil {
		return m.IssueTokenFn(p, ttl)
	}
	return "token", nil
}
func (m *TokenServiceMock) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, token)
	}
	return nil, auth.ErrInvalidToken
}

// HealthCheckerMock is a lightweight mock for HealthChecker
type HealthCheckerMock struct {
	NameValue string
	CheckFn   func(ctx context.Context) error
}

func (m *HealthCheckerMock) Name() string { return m.NameValue }
func (m *HealthCheckerMock) Check(ctx context.Context) error {
	if m.CheckFn != nil {
		return m.CheckFn(ctx)
	}
	return nil
}
