package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/gorilla/websocket"
)

const wsBufferSize = 32 * 1024

// WebSocketTransport is the preferred, persistent transport.
type WebSocketTransport struct {
	dialer *websocket.Dialer
}

func NewWebSocketTransport(handshakeTimeout time.Duration) *WebSocketTransport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 20 * time.Second
	}
	return &WebSocketTransport{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   wsBufferSize,
		WriteBufferSize:  wsBufferSize,
	}}
}

func (t *WebSocketTransport) Name() string { return TransportWebSocket }

func (t *WebSocketTransport) Dial(ctx context.Context, endpoint *url.URL, token string) (Conn, error) {
	u := withScheme(endpoint, "wss", "ws")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("websocket dial %s: %w", u.Host, ErrUnauthorized)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", u.Host, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) ReadFrame(ctx context.Context) (conversation.Frame, error) {
	var f conversation.Frame
	if err := ctx.Err(); err != nil {
		return f, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return f, io.EOF
		}
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func (c *wsConn) WriteFrame(ctx context.Context, f conversation.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(f); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return io.ErrClosedPipe
		}
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
