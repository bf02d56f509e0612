package services

import (
	"io"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// PresenceService turns keystrokes into typing signals. While the user keeps typing the
// client is re-signalled at most once per interval, which keeps replacing its auto-stop
// timer; when the keystrokes stop the timer fires and peers see the stop.
type PresenceService struct {
	client   ports.MessagingClient
	interval time.Duration
	now      func() time.Time
	logger   *logrus.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

func NewPresenceService(client ports.MessagingClient, typingTimeout time.Duration, logger *logrus.Logger) *PresenceService {
	if typingTimeout <= 0 {
		typingTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &PresenceService{
		client:   client,
		interval: typingTimeout / 3,
		now:      time.Now,
		logger:   logger,
		last:     make(map[string]time.Time),
	}
}

// Typing lists the other participants currently typing in the conversation.
func (s *PresenceService) Typing(conversationID string) []conversation.Participant {
	return s.client.TypingUsers(conversationID)
}

// Keystroke records user input. It reports false only when a signal was due and could
// not be sent.
func (s *PresenceService) Keystroke(conversationID string) bool {
	now := s.now()
	s.mu.Lock()
	if last, ok := s.last[conversationID]; ok && now.Sub(last) < s.interval {
		s.mu.Unlock()
		return true
	}
	s.last[conversationID] = now
	s.mu.Unlock()

	if !s.client.SendTypingStatus(conversationID, true) {
		s.mu.Lock()
		delete(s.last, conversationID)
		s.mu.Unlock()
		return false
	}
	return true
}

// StopTyping signals an explicit stop, e.g. when the message is sent.
func (s *PresenceService) StopTyping(conversationID string) bool {
	s.mu.Lock()
	_, active := s.last[conversationID]
	delete(s.last, conversationID)
	s.mu.Unlock()
	if !active {
		return true
	}
	return s.client.SendTypingStatus(conversationID, false)
}

func (s *PresenceService) Join(conversationID string) bool {
	ok := s.client.JoinConversation(conversationID)
	if !ok {
		s.logger.WithField("conversation_id", conversationID).Warn("join skipped: messaging client not ready")
	}
	return ok
}

func (s *PresenceService) Leave(conversationID string) bool {
	s.mu.Lock()
	delete(s.last, conversationID)
	s.mu.Unlock()
	return s.client.LeaveConversation(conversationID)
}
