package services_test

import (
	"sync"
	"testing"
	"time"

	impl "github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/mocks"
	"github.com/stretchr/testify/assert"
)

type typingCall struct {
	conv     string
	isTyping bool
}

func recordingClient(ready *bool) (*mocks.MessagingClientMock, func() []typingCall) {
	var (
		mu    sync.Mutex
		calls []typingCall
	)
	m := &mocks.MessagingClientMock{
		SendTypingStatusFn: func(conversationID string, isTyping bool) bool {
			if !*ready {
				return false
			}
			mu.Lock()
			calls = append(calls, typingCall{conversationID, isTyping})
			mu.Unlock()
			return true
		},
	}
	return m, func() []typingCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]typingCall(nil), calls...)
	}
}

func TestKeystroke_ThrottlesTypingSignals(t *testing.T) {
	ready := true
	client, calls := recordingClient(&ready)
	svc := impl.NewPresenceService(client, 300*time.Millisecond, nil)

	assert.True(t, svc.Keystroke("c1"))
	assert.True(t, svc.Keystroke("c1"))
	assert.True(t, svc.Keystroke("c2"))
	assert.Equal(t, []typingCall{{"c1", true}, {"c2", true}}, calls())

	// Test: after the interval the signal is repeated
	time.Sleep(120 * time.Millisecond)
	assert.True(t, svc.Keystroke("c1"))
	assert.Len(t, calls(), 3)

	assert.True(t, svc.StopTyping("c1"))
	assert.Equal(t, typingCall{"c1", false}, calls()[3])

	// Test: stop without a preceding keystroke sends nothing
	assert.True(t, svc.StopTyping("c1"))
	assert.Len(t, calls(), 4)
}

func TestKeystroke_NotReadyRetriesNextTime(t *testing.T) {
	ready := false
	client, calls := recordingClient(&ready)
	svc := impl.NewPresenceService(client, time.Hour, nil)

	assert.False(t, svc.Keystroke("c1"))
	ready = true
	assert.True(t, svc.Keystroke("c1"))
	assert.Equal(t, []typingCall{{"c1", true}}, calls())
}

func TestPresence_TypingAndMembership(t *testing.T) {
	peer := conversation.Participant{ID: "p", Type: conversation.ParticipantClient}
	var joined, left []string
	client := &mocks.MessagingClientMock{
		TypingUsersFn:       func(string) []conversation.Participant { return []conversation.Participant{peer} },
		JoinConversationFn:  func(id string) bool { joined = append(joined, id); return true },
		LeaveConversationFn: func(id string) bool { left = append(left, id); return true },
	}
	svc := impl.NewPresenceService(client, 0, nil)

	assert.Equal(t, []conversation.Participant{peer}, svc.Typing("c1"))
	assert.True(t, svc.Join("c1"))
	assert.True(t, svc.Leave("c1"))
	assert.Equal(t, []string{"c1"}, joined)
	assert.Equal(t, []string{"c1"}, left)
}
