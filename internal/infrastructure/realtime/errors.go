package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotReady           = errors.New("realtime: session not ready")
	ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")
	ErrClosed             = errors.New("realtime: client closed")
	ErrNoTransport        = errors.New("realtime: no transport configured")
	ErrUnauthorized       = errors.New("realtime: gateway rejected credentials")
	ErrInvalidTransition  = errors.New("realtime: invalid state transition")
)

// ServerError is an error frame sent by the gateway. Raw holds the payload as received.
type ServerError struct {
	Code    string
	Message string
	Raw     json.RawMessage
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway error: %s", e.Message)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}
