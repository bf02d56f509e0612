package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ErrNotParticipant = errors.New("not a participant of this conversation")
	ErrNotJoined      = errors.New("conversation not joined")
	ErrSessionClosed  = errors.New("session closed")
)

// Error codes carried in error frames.
const (
	CodeBadRequest   = "bad_request"
	CodeRateLimited  = "rate_limited"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeNotJoined    = "not_joined"
	CodeUnavailable  = "unavailable"
	CodeUnknownEvent = "unknown_event"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

const (
	defaultBuffer     = 64
	defaultFramesPerS = 20
	defaultFrameBurst = 40
	directoryTimeout  = 5 * time.Second
)

type HubOptions struct {
	FramesPerSecond float64
	FrameBurst      int
	OutboundBuffer  int
}

type room struct {
	members     map[string]*Session
	unsubscribe func()
}

// Hub owns the sessions of one gateway node and their conversation rooms. Room fan-out
// goes through the Broker so that several nodes can share rooms.
type Hub struct {
	directory ports.ConversationDirectory
	broker    Broker
	opts      HubOptions
	logger    *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]*room
}

var _ ports.EventPublisher = (*Hub)(nil)

func NewHub(directory ports.ConversationDirectory, broker Broker, opts HubOptions, logger *logrus.Logger) *Hub {
	if broker == nil {
		broker = NewLocalBroker()
	}
	if opts.FramesPerSecond <= 0 {
		opts.FramesPerSecond = defaultFramesPerS
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = defaultFrameBurst
	}
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = defaultBuffer
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Hub{
		directory: directory,
		broker:    broker,
		opts:      opts,
		logger:    logger,
		sessions:  make(map[string]*Session),
		rooms:     make(map[string]*room),
	}
}

func mustFrame(event conversation.EventName, data any) conversation.Frame {
	f, err := conversation.NewFrame(event, data)
	if err != nil {
		// payloads are package-defined structs
		panic(err)
	}
	return f
}

func errorFrame(code, message string) conversation.Frame {
	return mustFrame(conversation.EventError, conversation.ErrorPayload{Code: code, Message: message})
}

// Register opens a session and queues the connected and gateway:ready frames.
func (h *Hub) Register(p conversation.Participant, transport string) *Session {
	limiter := rate.NewLimiter(rate.Limit(h.opts.FramesPerSecond), h.opts.FrameBurst)
	s := newSession(uuid.NewString(), p, transport, h.opts.OutboundBuffer, limiter)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	sessionsGauge.WithLabelValues(transport).Inc()

	s.Send(mustFrame(conversation.EventConnected, conversation.ReadyPayload{SessionID: s.ID, Participant: p}))
	s.Send(mustFrame(conversation.EventGatewayReady, conversation.ReadyPayload{SessionID: s.ID, Participant: p}))
	h.logger.WithFields(logrus.Fields{"session_id": s.ID, "participant": p.Key(), "transport": transport}).Info("session registered")
	return s
}

// Unregister removes the session from every room and closes it. Safe to call twice.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)
	var unsubscribes []func()
	for _, convID := range s.Rooms() {
		if unsubscribe := h.leaveLocked(s, convID); unsubscribe != nil {
			unsubscribes = append(unsubscribes, unsubscribe)
		}
	}
	h.mu.Unlock()
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}

	if s.close() {
		sessionsGauge.WithLabelValues(s.Transport).Dec()
	}
	h.logger.WithFields(logrus.Fields{"session_id": s.ID, "participant": s.Participant.Key()}).Info("session closed")
}

func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// HandleFrame applies one inbound client frame. Protocol errors are answered with an
// error frame on the same session; they never tear the session down.
func (h *Hub) HandleFrame(ctx context.Context, s *Session, f conversation.Frame) {
	s.Touch()
	framesTotal.WithLabelValues("in", string(f.Event)).Inc()
	if !s.limiter.Allow() {
		framesDropped.WithLabelValues("rate_limited").Inc()
		s.Send(errorFrame(CodeRateLimited, "too many frames"))
		return
	}

	switch f.Event {
	case conversation.EventJoinConversation:
		var ref conversation.ConversationRef
		if err := f.Decode(&ref); err != nil || ref.ConversationID == "" {
			s.Send(errorFrame(CodeBadRequest, "join_conversation requires conversation_id"))
			return
		}
		if err := h.Join(ctx, s, ref.ConversationID); err != nil {
			s.Send(errorFrame(joinErrorCode(err), err.Error()))
		}

	case conversation.EventLeaveConversation:
		var ref conversation.ConversationRef
		if err := f.Decode(&ref); err != nil || ref.ConversationID == "" {
			s.Send(errorFrame(CodeBadRequest, "leave_conversation requires conversation_id"))
			return
		}
		h.Leave(s, ref.ConversationID)

	case conversation.EventTyping:
		var sig conversation.TypingSignal
		if err := f.Decode(&sig); err != nil || sig.ConversationID == "" {
			s.Send(errorFrame(CodeBadRequest, "typing requires conversation_id"))
			return
		}
		if err := h.relayTyping(ctx, s, sig); err != nil {
			code := CodeUnavailable
			if errors.Is(err, ErrNotJoined) {
				code = CodeNotJoined
			}
			s.Send(errorFrame(code, err.Error()))
		}

	default:
		s.Send(errorFrame(CodeUnknownEvent, fmt.Sprintf("unsupported event %q", f.Event)))
	}
}

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotParticipant):
		return CodeForbidden
	case errors.Is(err, ports.ErrConversationNotFound):
		return CodeNotFound
	default:
		return CodeUnavailable
	}
}

// Join authorises the session against the directory and adds it to the room.
func (h *Hub) Join(ctx context.Context, s *Session, conversationID string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()
	conv, err := h.directory.GetConversation(lookupCtx, conversationID)
	if err != nil {
		h.logger.WithField("conversation_id", conversationID).WithError(err).Warn("conversation lookup failed")
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	if !conv.HasParticipant(s.Participant) {
		return fmt.Errorf("join %s: %w", conversationID, ErrNotParticipant)
	}

	added, err := h.addMember(s, conversationID)
	if err != nil {
		return err
	}
	if added {
		return h.joined(s, conversationID)
	}

	// First member on this node: subscribe outside the lock, then re-check.
	unsubscribe, err := h.broker.Subscribe(ctx, conversationID, h.deliver)
	if err != nil {
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		unsubscribe()
		return ErrSessionClosed
	}
	if r := h.rooms[conversationID]; r != nil {
		// another join subscribed meanwhile
		r.members[s.ID] = s
		s.addRoom(conversationID)
		h.mu.Unlock()
		unsubscribe()
		return h.joined(s, conversationID)
	}
	h.rooms[conversationID] = &room{members: map[string]*Session{s.ID: s}, unsubscribe: unsubscribe}
	roomsGauge.Inc()
	s.addRoom(conversationID)
	h.mu.Unlock()
	return h.joined(s, conversationID)
}

// addMember adds s to the room if this node already has one.
func (h *Hub) addMember(s *Session, conversationID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; !ok {
		return false, ErrSessionClosed
	}
	r := h.rooms[conversationID]
	if r == nil {
		return false, nil
	}
	r.members[s.ID] = s
	s.addRoom(conversationID)
	return true, nil
}

func (h *Hub) joined(s *Session, conversationID string) error {
	s.Send(mustFrame(conversation.EventJoinedConversation, conversation.ConversationRef{ConversationID: conversationID}))
	h.logger.WithFields(logrus.Fields{"session_id": s.ID, "conversation_id": conversationID}).Debug("joined conversation")
	return nil
}

func (h *Hub) Leave(s *Session, conversationID string) {
	h.mu.Lock()
	unsubscribe := h.leaveLocked(s, conversationID)
	h.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	s.Send(mustFrame(conversation.EventLeftConversation, conversation.ConversationRef{ConversationID: conversationID}))
}

// leaveLocked removes s from the room. When the room empties it returns the broker
// unsubscribe, to be called after h.mu is released.
func (h *Hub) leaveLocked(s *Session, conversationID string) func() {
	s.removeRoom(conversationID)
	r := h.rooms[conversationID]
	if r == nil {
		return nil
	}
	delete(r.members, s.ID)
	if len(r.members) > 0 {
		return nil
	}
	delete(h.rooms, conversationID)
	roomsGauge.Dec()
	return r.unsubscribe
}

func (h *Hub) relayTyping(ctx context.Context, s *Session, sig conversation.TypingSignal) error {
	if !s.InRoom(sig.ConversationID) {
		return fmt.Errorf("typing in %s: %w", sig.ConversationID, ErrNotJoined)
	}
	f := mustFrame(conversation.EventUserTyping, conversation.TypingEvent{
		ConversationID: sig.ConversationID,
		Participant:    s.Participant,
		IsTyping:       sig.IsTyping,
	})
	return h.broker.Publish(ctx, Envelope{ConversationID: sig.ConversationID, Origin: s.ID, Frame: f})
}

// Publish implements ports.EventPublisher for backend-originated events.
func (h *Hub) Publish(ctx context.Context, conversationID string, frame conversation.Frame) error {
	return h.broker.Publish(ctx, Envelope{ConversationID: conversationID, Frame: frame})
}

func (h *Hub) deliver(env Envelope) {
	h.mu.RLock()
	r := h.rooms[env.ConversationID]
	var members []*Session
	if r != nil {
		members = make([]*Session, 0, len(r.members))
		for id, s := range r.members {
			if id != env.Origin {
				members = append(members, s)
			}
		}
	}
	h.mu.RUnlock()
	for _, s := range members {
		s.Send(env.Frame)
	}
}

// SweepIdle closes polling sessions that have not polled within ttl.
func (h *Hub) SweepIdle(now time.Time, ttl time.Duration) int {
	h.mu.RLock()
	var idle []*Session
	for _, s := range h.sessions {
		if s.Transport == TransportPolling && s.IdleFor(now) > ttl {
			idle = append(idle, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range idle {
		h.Unregister(s)
	}
	if len(idle) > 0 {
		h.logger.WithField("closed", len(idle)).Info("closed idle polling sessions")
	}
	return len(idle)
}

// Shutdown tells every session why it is being closed, then closes it. Clients do not
// reconnect after a disconnect frame.
func (h *Hub) Shutdown(reason string) {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Send(mustFrame(conversation.EventDisconnect, conversation.DisconnectPayload{Reason: reason}))
		h.Unregister(s)
	}
}
