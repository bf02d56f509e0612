package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

const pollClientTimeout = 60 * time.Second

// PollingTransport is the HTTP long-poll fallback:
//
//	POST   {endpoint}/poll        open a session, returns {"session_id": "..."}
//	GET    {endpoint}/poll/{sid}  wait for queued frames, returns a JSON array
//	POST   {endpoint}/poll/{sid}  send one frame
//	DELETE {endpoint}/poll/{sid}  close the session
type PollingTransport struct {
	client *http.Client
}

func NewPollingTransport(client *http.Client) *PollingTransport {
	if client == nil {
		client = &http.Client{Timeout: pollClientTimeout}
	}
	return &PollingTransport{client: client}
}

func (t *PollingTransport) Name() string { return TransportPolling }

type pollOpenResponse struct {
	SessionID string `json:"session_id"`
}

func (t *PollingTransport) Dial(ctx context.Context, endpoint *url.URL, token string) (Conn, error) {
	base := withScheme(endpoint, "https", "http").String() + "/poll"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, nil)
	if err != nil {
		return nil, err
	}
	setBearer(req, token)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling open: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("polling open: %w", ErrUnauthorized)
	default:
		return nil, fmt.Errorf("polling open: unexpected status %d", resp.StatusCode)
	}
	var open pollOpenResponse
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil || open.SessionID == "" {
		return nil, fmt.Errorf("polling open: malformed session response")
	}

	connCtx, cancel := context.WithCancel(context.Background())
	return &pollConn{
		client:  t.client,
		session: base + "/" + url.PathEscape(open.SessionID),
		token:   token,
		ctx:     connCtx,
		cancel:  cancel,
	}, nil
}

type pollConn struct {
	client  *http.Client
	session string
	token   string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	pending []conversation.Frame
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// bound derives a request context that ends with either ctx or the connection.
func (c *pollConn) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

// ReadFrame hands out the buffered batch one frame at a time. Once closed it returns
// io.EOF even with frames still buffered.
func (c *pollConn) ReadFrame(ctx context.Context) (conversation.Frame, error) {
	for {
		if c.ctx.Err() != nil {
			c.pending = nil
			return conversation.Frame{}, io.EOF
		}
		if len(c.pending) > 0 {
			break
		}
		frames, err := c.poll(ctx)
		if err != nil {
			return conversation.Frame{}, err
		}
		c.pending = frames
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, nil
}

func (c *pollConn) poll(ctx context.Context) ([]conversation.Frame, error) {
	reqCtx, cancel := c.bound(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.session, nil)
	if err != nil {
		return nil, err
	}
	setBearer(req, c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound, http.StatusGone:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
	var frames []conversation.Frame
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		return nil, fmt.Errorf("poll: decode frames: %w", err)
	}
	return frames, nil
}

func (c *pollConn) WriteFrame(ctx context.Context, f conversation.Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	reqCtx, cancel := c.bound(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.session, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	setBearer(req, c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *pollConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.session, nil)
		if err != nil {
			return
		}
		setBearer(req, c.token)
		if resp, err := c.client.Do(req); err == nil {
			resp.Body.Close()
		}
	})
	return nil
}
