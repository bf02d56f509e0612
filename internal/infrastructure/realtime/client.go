package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	config "github.com/avatarctic/realtime-core/configs"
	"github.com/avatarctic/realtime-core/internal/core/domain/auth"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout    = 20 * time.Second
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultTypingTimeout     = 3 * time.Second
	defaultTypingStopMargin  = 500 * time.Millisecond
	defaultTypingSweep       = time.Second
)

// Options configures a Client. Zero durations fall back to the package defaults.
type Options struct {
	URL   string
	Path  string
	Token string
	// Self is the local identity. When empty it is read from the token claims and, failing
	// that, from the gateway's ready payload.
	Self conversation.Participant
	// Transports are tried in order on every attempt; the first that dials wins.
	Transports []Transport

	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	TypingTimeout     time.Duration
	TypingStopMargin  time.Duration
	TypingSweep       time.Duration

	Now    func() time.Time
	Logger *logrus.Logger
}

// OptionsFromConfig maps the messaging configuration onto client options.
func OptionsFromConfig(cfg *config.MessagingConfig, logger *logrus.Logger) (Options, error) {
	opts := Options{
		URL:               cfg.URL,
		Path:              cfg.Path,
		Token:             cfg.Token,
		ConnectTimeout:    cfg.Timeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		TypingTimeout:     cfg.TypingTimeout,
		TypingStopMargin:  cfg.TypingStopMargin,
		TypingSweep:       cfg.TypingSweep,
		Logger:            logger,
	}
	for _, name := range cfg.Transports {
		t, err := TransportByName(name, cfg.Timeout)
		if err != nil {
			return Options{}, err
		}
		opts.Transports = append(opts.Transports, t)
	}
	return opts, nil
}

type stopTimer struct {
	timer *time.Timer
	seq   uint64
}

// Client is a reconnecting, conversation-scoped gateway client. One instance owns one
// connection; construct it at startup and inject it where needed.
type Client struct {
	opts     Options
	endpoint *url.URL
	logger   *logrus.Logger
	fsm      *ConnectionFSM
	typing   *TypingTracker

	mu          sync.Mutex
	running     bool
	conn        Conn
	transport   string
	gen         uint64
	cancelRead  context.CancelFunc
	reconnect   *time.Timer
	stopTimers  map[string]stopTimer
	timerSeq    uint64
	sweepCancel context.CancelFunc
	self        conversation.Participant
	sessionID   string

	messages    listeners[conversation.Message]
	updates     listeners[conversation.Message]
	deletions   listeners[conversation.MessageDeleted]
	reads       listeners[conversation.ReadReceipt]
	typists     listeners[conversation.TypingEvent]
	errs        listeners[error]
	states      listeners[ConnState]
	joined      listeners[string]
	left        listeners[string]
	disconnects listeners[string]
}

var _ ports.MessagingClient = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	endpoint, err := Endpoint(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	if len(opts.Transports) == 0 {
		return nil, ErrNoTransport
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}
	if opts.TypingStopMargin <= 0 {
		opts.TypingStopMargin = defaultTypingStopMargin
	}
	if opts.TypingSweep <= 0 {
		opts.TypingSweep = defaultTypingSweep
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	self := opts.Self
	if self.ID == "" && opts.Token != "" {
		if p, ok := participantFromToken(opts.Token); ok {
			self = p
		}
	}
	return &Client{
		opts:       opts,
		endpoint:   endpoint,
		logger:     logger,
		fsm:        NewConnectionFSM(opts.ReconnectAttempts, opts.ReconnectDelay),
		typing:     NewTypingTracker(opts.TypingTimeout, opts.Now),
		stopTimers: make(map[string]stopTimer),
		self:       self,
	}, nil
}

// participantFromToken reads identity claims without verifying the signature; the
// gateway is the one that verifies.
func participantFromToken(token string) (conversation.Participant, bool) {
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return conversation.Participant{}, false
	}
	p := claims.Participant()
	return p, p.ID != "" && p.Type.IsValid()
}

func (c *Client) State() ConnState { return c.fsm.State() }
func (c *Client) IsReady() bool    { return c.fsm.State() == StateReady }

func (c *Client) Self() conversation.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// SessionID is the gateway session of the current connection, empty before ready.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Transport names the transport of the current connection.
func (c *Client) Transport() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// Connect makes the first connection attempt and returns its outcome. A failed attempt
// still schedules backoff retries; the terminal failure is reported through OnError.
// Calling Connect on a running client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.fsm.Reset()
	sweepCtx, cancel := context.WithCancel(context.Background())
	c.sweepCancel = cancel
	c.mu.Unlock()

	go c.sweep(sweepCtx)
	return c.attempt(ctx)
}

// WaitReady blocks until the session is ready or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	unsubscribe := c.OnStateChange(func(s ConnState) {
		if s == StateReady {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()
	if c.IsReady() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) attempt(ctx context.Context) error {
	if err := c.fsm.Begin(); err != nil {
		return err
	}
	c.states.emit(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, name, err := c.dial(dialCtx)
	cancel()
	if errors.Is(err, ErrUnauthorized) {
		c.reject(err)
		return err
	}
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	readCtx, cancelRead := context.WithCancel(context.Background())
	c.conn, c.cancelRead, c.transport = conn, cancelRead, name
	c.mu.Unlock()

	if err := c.fsm.Connected(); err == nil {
		c.states.emit(StateConnected)
	}
	c.logger.WithFields(logrus.Fields{"endpoint": c.endpoint.Host, "transport": name}).Info("gateway connected")
	go c.readLoop(readCtx, conn, gen)
	return nil
}

func (c *Client) dial(ctx context.Context) (Conn, string, error) {
	var errs []error
	for _, t := range c.opts.Transports {
		conn, err := t.Dial(ctx, c.endpoint, c.opts.Token)
		if err == nil {
			return conn, t.Name(), nil
		}
		c.logger.WithFields(logrus.Fields{"transport": t.Name()}).WithError(err).Debug("transport dial failed")
		errs = append(errs, err)
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}

// fail feeds a failed attempt or a dropped connection into the FSM and either schedules
// the next attempt or gives up for good.
func (c *Client) fail(cause error) {
	delay, retry := c.fsm.Fail()
	c.states.emit(StateDisconnected)
	attempts := c.fsm.Attempts()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	if !retry {
		c.running = false
		c.stopBackgroundLocked()
		c.mu.Unlock()
		c.typing.Reset()
		c.logger.WithField("attempts", attempts).WithError(cause).Error("gateway unreachable, giving up")
		c.errs.emit(fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempts, cause))
		return
	}
	c.reconnect = time.AfterFunc(delay, c.retry)
	c.mu.Unlock()
	c.logger.WithFields(logrus.Fields{"attempt": attempts, "delay": delay}).WithError(cause).Warn("gateway connection failed, retrying")
}

// reject stops the client without retrying once the gateway refuses the credentials.
func (c *Client) reject(cause error) {
	c.fsm.Halt()
	c.states.emit(StateDisconnected)
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.stopBackgroundLocked()
	c.mu.Unlock()
	c.typing.Reset()
	c.logger.WithError(cause).Error("gateway rejected credentials")
	c.errs.emit(cause)
}

func (c *Client) retry() {
	c.mu.Lock()
	c.reconnect = nil
	running := c.running
	c.mu.Unlock()
	if running {
		_ = c.attempt(context.Background())
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		f, err := conn.ReadFrame(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.lost(gen, err)
			return
		}
		c.dispatch(gen, f)
	}
}

// lost handles a read failure on connection gen. Closes initiated locally bump gen first,
// so they never reach the retry path.
func (c *Client) lost(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.dropConnLocked()
	c.mu.Unlock()
	c.typing.Reset()
	c.logger.WithError(cause).Warn("gateway connection lost")
	c.fail(cause)
}

// dropConnLocked closes the current connection and cancels every typing timer.
func (c *Client) dropConnLocked() {
	c.gen++
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.sessionID = ""
	for key, st := range c.stopTimers {
		st.timer.Stop()
		delete(c.stopTimers, key)
	}
}

func (c *Client) stopBackgroundLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.sweepCancel != nil {
		c.sweepCancel()
		c.sweepCancel = nil
	}
}

// Disconnect cancels pending timers, closes the connection and clears local presence.
// It is idempotent; the client may be connected again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.running = false
	c.stopBackgroundLocked()
	c.dropConnLocked()
	c.mu.Unlock()

	c.typing.Reset()
	if c.fsm.Reset() {
		c.states.emit(StateDisconnected)
		c.logger.Info("gateway disconnected")
	}
}

func (c *Client) sweep(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TypingSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range c.typing.Sweep() {
				c.typists.emit(ev)
			}
		}
	}
}

// current reports whether gen is still the live connection.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.conn != nil
}

// dispatch applies one frame read from connection gen. Frames from a replaced or closed
// connection are dropped.
func (c *Client) dispatch(gen uint64, f conversation.Frame) {
	log := c.logger.WithField("event", f.Event)
	if f.Event != conversation.EventGatewayReady && f.Event != conversation.EventDisconnect && !c.current(gen) {
		log.Debug("dropping frame from stale connection")
		return
	}
	switch f.Event {
	case conversation.EventConnected:
		log.Debug("transport acknowledged")

	case conversation.EventGatewayReady:
		var p conversation.ReadyPayload
		if err := f.Decode(&p); err != nil {
			log.WithError(err).Debug("ready frame without payload")
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.sessionID = p.SessionID
		if c.self.ID == "" && p.Participant.ID != "" {
			c.self = p.Participant
		}
		c.mu.Unlock()
		if err := c.fsm.Ready(); err != nil {
			log.WithError(err).Warn("unexpected ready frame")
			return
		}
		c.states.emit(StateReady)
		log.WithField("session_id", p.SessionID).Info("gateway ready")

	case conversation.EventDisconnect:
		var p conversation.DisconnectPayload
		_ = f.Decode(&p)
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.running = false
		c.stopBackgroundLocked()
		c.dropConnLocked()
		c.mu.Unlock()
		c.typing.Reset()
		if c.fsm.Halt() {
			c.states.emit(StateDisconnected)
		}
		log.WithField("reason", p.Reason).Warn("gateway closed the session")
		c.disconnects.emit(p.Reason)

	case conversation.EventNewMessage:
		var m conversation.Message
		if c.decode(f, &m) {
			c.messages.emit(m)
		}

	case conversation.EventMessageUpdated:
		var m conversation.Message
		if c.decode(f, &m) {
			c.updates.emit(m)
		}

	case conversation.EventMessageDeleted:
		var d conversation.MessageDeleted
		if c.decode(f, &d) {
			c.deletions.emit(d)
		}

	case conversation.EventMessagesRead:
		var r conversation.ReadReceipt
		if c.decode(f, &r) {
			c.reads.emit(r)
		}

	case conversation.EventUserTyping:
		var ev conversation.TypingEvent
		if !c.decode(f, &ev) {
			return
		}
		if ev.Participant == c.Self() {
			return
		}
		// under c.mu so a concurrent Disconnect either clears the entry or skips it
		c.mu.Lock()
		if gen != c.gen || c.conn == nil {
			c.mu.Unlock()
			return
		}
		c.typing.Update(ev.ConversationID, ev.Participant, ev.IsTyping)
		c.mu.Unlock()
		c.typists.emit(ev)

	case conversation.EventError:
		var p conversation.ErrorPayload
		_ = f.Decode(&p)
		c.errs.emit(&ServerError{Code: p.Code, Message: p.Message, Raw: f.Data})

	case conversation.EventJoinedConversation:
		var ref conversation.ConversationRef
		if c.decode(f, &ref) {
			c.joined.emit(ref.ConversationID)
		}

	case conversation.EventLeftConversation:
		var ref conversation.ConversationRef
		if c.decode(f, &ref) {
			c.left.emit(ref.ConversationID)
		}

	default:
		log.Debug("ignoring unknown event")
	}
}

func (c *Client) decode(f conversation.Frame, v any) bool {
	if err := f.Decode(v); err != nil {
		c.logger.WithField("event", f.Event).WithError(err).Warn("dropping malformed frame")
		return false
	}
	return true
}

// send writes one frame when ready. It never queues.
func (c *Client) send(event conversation.EventName, data any) bool {
	log := c.logger.WithField("event", event)
	if !c.IsReady() {
		log.WithField("state", c.State().String()).Warn("gateway not ready, signal not sent")
		return false
	}
	f, err := conversation.NewFrame(event, data)
	if err != nil {
		log.WithError(err).Error("encode frame")
		return false
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		log.Warn("no connection, signal not sent")
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := conn.WriteFrame(ctx, f); err != nil {
		log.WithError(err).Warn("write frame")
		return false
	}
	return true
}

// JoinConversation asks the gateway to route the conversation's events to this session.
// It returns false without emitting anything when the session is not ready.
func (c *Client) JoinConversation(conversationID string) bool {
	return c.send(conversation.EventJoinConversation, conversation.ConversationRef{ConversationID: conversationID})
}

// LeaveConversation drops local presence for the conversation and signals the gateway.
func (c *Client) LeaveConversation(conversationID string) bool {
	c.typing.Forget(conversationID)
	c.mu.Lock()
	prefix := conversationID + "|"
	for key, st := range c.stopTimers {
		if strings.HasPrefix(key, prefix) {
			st.timer.Stop()
			delete(c.stopTimers, key)
		}
	}
	c.mu.Unlock()
	return c.send(conversation.EventLeaveConversation, conversation.ConversationRef{ConversationID: conversationID})
}

// SendTypingStatus signals typing state. A true signal arms a single auto-stop timer per
// conversation that fires TypingStopMargin before peers would expire the entry; every call
// replaces the previous timer.
func (c *Client) SendTypingStatus(conversationID string, isTyping bool) bool {
	if !c.send(conversation.EventTyping, conversation.TypingSignal{ConversationID: conversationID, IsTyping: isTyping}) {
		return false
	}
	key := conversationID + "|" + c.Self().Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.stopTimers[key]; ok {
		st.timer.Stop()
		delete(c.stopTimers, key)
	}
	if isTyping {
		c.timerSeq++
		seq := c.timerSeq
		t := time.AfterFunc(c.autoStopAfter(), func() { c.autoStop(conversationID, key, seq) })
		c.stopTimers[key] = stopTimer{timer: t, seq: seq}
	}
	return true
}

func (c *Client) autoStopAfter() time.Duration {
	d := c.opts.TypingTimeout - c.opts.TypingStopMargin
	if d <= 0 {
		return c.opts.TypingTimeout
	}
	return d
}

func (c *Client) autoStop(conversationID, key string, seq uint64) {
	c.mu.Lock()
	st, ok := c.stopTimers[key]
	if !ok || st.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.stopTimers, key)
	c.mu.Unlock()
	c.logger.WithField("conversation_id", conversationID).Debug("typing auto-stop")
	c.send(conversation.EventTyping, conversation.TypingSignal{ConversationID: conversationID, IsTyping: false})
}

// PendingTypingTimers is the number of armed auto-stop timers.
func (c *Client) PendingTypingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stopTimers)
}

// TypingUsers returns the peers currently typing in the conversation.
func (c *Client) TypingUsers(conversationID string) []conversation.Participant {
	return c.typing.Users(conversationID)
}

func (c *Client) OnMessage(fn func(conversation.Message)) func() {
	return c.messages.add(fn)
}

func (c *Client) OnMessageUpdated(fn func(conversation.Message)) func() {
	return c.updates.add(fn)
}

func (c *Client) OnMessageDeleted(fn func(conversation.MessageDeleted)) func() {
	return c.deletions.add(fn)
}

func (c *Client) OnMessagesRead(fn func(conversation.ReadReceipt)) func() {
	return c.reads.add(fn)
}

// OnTyping fires for peer typing changes, including entries expired by the sweep
// (reported with IsTyping false). The local participant's own echoes are suppressed.
func (c *Client) OnTyping(fn func(conversation.TypingEvent)) func() {
	return c.typists.add(fn)
}

// OnError receives gateway error frames as *ServerError and, once, ErrReconnectExhausted.
func (c *Client) OnError(fn func(error)) func() {
	return c.errs.add(fn)
}

func (c *Client) OnStateChange(fn func(ConnState)) func() {
	return c.states.add(fn)
}

func (c *Client) OnJoined(fn func(conversationID string)) func() {
	return c.joined.add(fn)
}

func (c *Client) OnLeft(fn func(conversationID string)) func() {
	return c.left.add(fn)
}

// OnDisconnect fires when the gateway closes the session, with its reason. No reconnect
// follows a server-initiated close.
func (c *Client) OnDisconnect(fn func(reason string)) func() {
	return c.disconnects.add(fn)
}
