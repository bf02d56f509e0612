package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

type typingEntry struct {
	participant conversation.Participant
	updatedAt   time.Time
}

// TypingTracker is the client-local view of who is typing where. Entries older than the
// expiry window are stale and dropped by Sweep; readers never see them either way.
type TypingTracker struct {
	mu     sync.Mutex
	expiry time.Duration
	now    func() time.Time
	rooms  map[string]map[string]typingEntry
}

func NewTypingTracker(expiry time.Duration, now func() time.Time) *TypingTracker {
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{expiry: expiry, now: now, rooms: make(map[string]map[string]typingEntry)}
}

// Update records a typing signal. A stop signal removes the entry.
func (t *TypingTracker) Update(conversationID string, p conversation.Participant, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.rooms[conversationID]
	if !isTyping {
		if room != nil {
			delete(room, p.Key())
			if len(room) == 0 {
				delete(t.rooms, conversationID)
			}
		}
		return
	}
	if room == nil {
		room = make(map[string]typingEntry)
		t.rooms[conversationID] = room
	}
	room[p.Key()] = typingEntry{participant: p, updatedAt: t.now()}
}

// Users returns the non-expired typists of a conversation ordered by participant key.
func (t *TypingTracker) Users(conversationID string) []conversation.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.expiry)
	var out []conversation.Participant
	for _, e := range t.rooms[conversationID] {
		if e.updatedAt.After(cutoff) {
			out = append(out, e.participant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Sweep drops expired entries and empty conversations, returning what expired.
func (t *TypingTracker) Sweep() []conversation.TypingEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.expiry)
	var expired []conversation.TypingEvent
	for convID, room := range t.rooms {
		for key, e := range room {
			if !e.updatedAt.After(cutoff) {
				delete(room, key)
				expired = append(expired, conversation.TypingEvent{ConversationID: convID, Participant: e.participant})
			}
		}
		if len(room) == 0 {
			delete(t.rooms, convID)
		}
	}
	return expired
}

func (t *TypingTracker) Forget(conversationID string) {
	t.mu.Lock()
	delete(t.rooms, conversationID)
	t.mu.Unlock()
}

func (t *TypingTracker) Reset() {
	t.mu.Lock()
	t.rooms = make(map[string]map[string]typingEntry)
	t.mu.Unlock()
}

// Conversations is the number of conversations with at least one tracked entry.
func (t *TypingTracker) Conversations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}
