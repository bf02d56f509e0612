package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"

	defaultPath = "/gateway"
)

// Conn is one established gateway session. ReadFrame is called from a single goroutine;
// WriteFrame may be called concurrently.
type Conn interface {
	ReadFrame(ctx context.Context) (conversation.Frame, error)
	WriteFrame(ctx context.Context, f conversation.Frame) error
	Close() error
}

// Transport dials a gateway endpoint with a bearer token.
type Transport interface {
	Name() string
	Dial(ctx context.Context, endpoint *url.URL, token string) (Conn, error)
}

// TransportByName builds a transport from its configured name.
func TransportByName(name string, handshakeTimeout time.Duration) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TransportWebSocket, "ws":
		return NewWebSocketTransport(handshakeTimeout), nil
	case TransportPolling, "long-polling":
		return NewPollingTransport(nil), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// Endpoint joins the base URL and the gateway path. Only http, https, ws and wss
// schemes are accepted; transports rewrite the scheme they need.
func Endpoint(base, path string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("gateway url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("gateway url %q has no host", base)
	}
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func withScheme(u *url.URL, secure, plain string) *url.URL {
	out := *u
	switch u.Scheme {
	case "https", "wss":
		out.Scheme = secure
	default:
		out.Scheme = plain
	}
	return &out
}
