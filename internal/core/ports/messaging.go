package ports

import (
	"context"
	"errors"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

var ErrConversationNotFound = errors.New("conversation not found")

// MessagingClient is the conversation-scoped side of the realtime gateway client that
// application services depend on. Operations return false when the session is not ready.
type MessagingClient interface {
	IsReady() bool
	Self() conversation.Participant
	JoinConversation(conversationID string) bool
	LeaveConversation(conversationID string) bool
	SendTypingStatus(conversationID string, isTyping bool) bool
	TypingUsers(conversationID string) []conversation.Participant
}

// ConversationDirectory resolves conversations (and hence membership) from the system of
// record. The REST backend owns the data; the gateway only reads it.
// GetConversation returns ErrConversationNotFound for unknown ids.
type ConversationDirectory interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
}

// EventPublisher delivers a gateway frame to every session joined to a conversation.
type EventPublisher interface {
	Publish(ctx context.Context, conversationID string, frame conversation.Frame) error
}
