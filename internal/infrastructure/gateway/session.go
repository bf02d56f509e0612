package gateway

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"golang.org/x/time/rate"
)

// Session is one connected client, whatever the transport. Outbound frames are queued
// on a bounded buffer; a slow consumer loses frames rather than stalling the room.
type Session struct {
	ID          string
	Participant conversation.Participant
	Transport   string

	out       chan conversation.Frame
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	lastSeen  atomic.Int64

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newSession(id string, p conversation.Participant, transport string, buffer int, limiter *rate.Limiter) *Session {
	s := &Session{
		ID:          id,
		Participant: p,
		Transport:   transport,
		out:         make(chan conversation.Frame, buffer),
		done:        make(chan struct{}),
		limiter:     limiter,
		rooms:       make(map[string]struct{}),
	}
	s.Touch()
	return s
}

// Send queues a frame without blocking. It reports false when the session is closed or
// its buffer is full.
func (s *Session) Send(f conversation.Frame) bool {
	select {
	case <-s.done:
		framesDropped.WithLabelValues("closed").Inc()
		return false
	default:
	}
	select {
	case s.out <- f:
		framesTotal.WithLabelValues("out", string(f.Event)).Inc()
		return true
	default:
		framesDropped.WithLabelValues("backpressure").Inc()
		return false
	}
}

// Frames is the outbound queue, read by the websocket writer.
func (s *Session) Frames() <-chan conversation.Frame { return s.out }

// Done is closed once the session is unregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Poll waits up to wait for at least one frame and returns everything queued.
// A closed session with nothing left returns ErrSessionClosed.
func (s *Session) Poll(ctx context.Context, wait time.Duration) ([]conversation.Frame, error) {
	s.Touch()
	defer s.Touch()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f := <-s.out:
		return s.drain([]conversation.Frame{f}), nil
	case <-s.done:
		frames := s.drain(nil)
		if len(frames) == 0 {
			return nil, ErrSessionClosed
		}
		return frames, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) drain(frames []conversation.Frame) []conversation.Frame {
	for {
		select {
		case f := <-s.out:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) InRoom(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[conversationID]
	return ok
}

func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Session) addRoom(id string) {
	s.mu.Lock()
	s.rooms[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeRoom(id string) {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
}

func (s *Session) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}
