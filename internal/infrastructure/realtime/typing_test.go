package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	peerCoach  = conversation.Participant{ID: "c-1", Type: conversation.ParticipantCoach}
	peerClient = conversation.Participant{ID: "u-7", Type: conversation.ParticipantClient}
)

func TestTypingExpiry(t *testing.T) {
	clock := newFakeClock()
	tr := NewTypingTracker(3*time.Second, clock.Now)

	tr.Update("conv1", peerCoach, true)
	assert.Equal(t, []conversation.Participant{peerCoach}, tr.Users("conv1"))

	clock.Advance(3100 * time.Millisecond)
	assert.Empty(t, tr.Users("conv1"), "stale entries are hidden before the sweep")

	expired := tr.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, conversation.TypingEvent{ConversationID: "conv1", Participant: peerCoach}, expired[0])
	assert.Equal(t, 0, tr.Conversations())
}

func TestTypingRefreshSurvivesOriginalExpiry(t *testing.T) {
	clock := newFakeClock()
	tr := NewTypingTracker(3*time.Second, clock.Now)

	tr.Update("conv1", peerCoach, true)
	clock.Advance(2 * time.Second)
	tr.Update("conv1", peerCoach, true)
	clock.Advance(2 * time.Second)

	assert.Empty(t, tr.Sweep())
	assert.Equal(t, []conversation.Participant{peerCoach}, tr.Users("conv1"))

	clock.Advance(1500 * time.Millisecond)
	assert.Len(t, tr.Sweep(), 1)
	assert.Empty(t, tr.Users("conv1"))
}

func TestTypingStopRemovesEntry(t *testing.T) {
	tr := NewTypingTracker(3*time.Second, nil)
	tr.Update("conv1", peerCoach, true)
	tr.Update("conv1", peerClient, true)
	assert.Equal(t, []conversation.Participant{peerClient, peerCoach}, tr.Users("conv1"))

	tr.Update("conv1", peerCoach, false)
	assert.Equal(t, []conversation.Participant{peerClient}, tr.Users("conv1"))

	tr.Update("conv1", peerClient, false)
	assert.Equal(t, 0, tr.Conversations())

	// stopping an unknown entry is harmless
	tr.Update("conv9", peerClient, false)
	assert.Equal(t, 0, tr.Conversations())
}

func TestTypingForgetAndReset(t *testing.T) {
	tr := NewTypingTracker(3*time.Second, nil)
	tr.Update("conv1", peerCoach, true)
	tr.Update("conv2", peerCoach, true)

	tr.Forget("conv1")
	assert.Empty(t, tr.Users("conv1"))
	assert.Equal(t, 1, tr.Conversations())

	tr.Reset()
	assert.Equal(t, 0, tr.Conversations())
}
