package realtime

import (
	"fmt"
	"sync"
	"time"
)

// ConnState is the lifecycle state of a gateway session.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReady
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

const maxBackoffShift = 16

// Backoff returns base * 2^(attempt-1). attempt values below 1 are treated as 1.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << shift
}

// ConnectionFSM holds the connection state and the reconnect policy. It knows nothing
// about transports; the client drives it with the outcome of each attempt.
//
//	disconnected -> connecting -> connected -> ready
//	any          -> disconnected
type ConnectionFSM struct {
	mu          sync.Mutex
	state       ConnState
	attempts    int
	maxAttempts int
	baseDelay   time.Duration
	exhausted   bool
}

func NewConnectionFSM(maxAttempts int, baseDelay time.Duration) *ConnectionFSM {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ConnectionFSM{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (f *ConnectionFSM) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Attempts is the number of consecutive failures since the last successful connect.
func (f *ConnectionFSM) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *ConnectionFSM) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exhausted
}

func (f *ConnectionFSM) move(from, to ConnState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != from {
		return fmt.Errorf("%w: %s -> %s (state is %s)", ErrInvalidTransition, from, to, f.state)
	}
	f.state = to
	return nil
}

// Begin marks a dial in progress.
func (f *ConnectionFSM) Begin() error { return f.move(StateDisconnected, StateConnecting) }

// Connected records a successful transport handshake and clears the failure count.
func (f *ConnectionFSM) Connected() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateConnecting {
		return fmt.Errorf("%w: %s -> %s (state is %s)", ErrInvalidTransition, StateConnecting, StateConnected, f.state)
	}
	f.state = StateConnected
	f.attempts = 0
	f.exhausted = false
	return nil
}

// Ready records the gateway's session acknowledgment.
func (f *ConnectionFSM) Ready() error { return f.move(StateConnected, StateReady) }

// Fail records a failed dial or a dropped connection. It reports the delay before the
// next attempt, or retry=false once the attempt budget is spent.
func (f *ConnectionFSM) Fail() (delay time.Duration, retry bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateDisconnected
	f.attempts++
	if f.attempts >= f.maxAttempts {
		f.exhausted = true
		return 0, false
	}
	return Backoff(f.baseDelay, f.attempts), true
}

// Halt moves to disconnected without touching the retry budget (server-initiated close).
func (f *ConnectionFSM) Halt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.state != StateDisconnected
	f.state = StateDisconnected
	return changed
}

// Reset moves to disconnected and restores the full retry budget.
func (f *ConnectionFSM) Reset() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.state != StateDisconnected
	f.state = StateDisconnected
	f.attempts = 0
	f.exhausted = false
	return changed
}
