package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// RESTConversationDirectory reads conversations from the backend that owns them:
// GET {base}/api/v1/conversations/{id}.
type RESTConversationDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRESTConversationDirectory(baseURL, token string, timeout time.Duration) (*RESTConversationDirectory, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid directory url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTConversationDirectory{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (d *RESTConversationDirectory) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	endpoint := d.baseURL + "/api/v1/conversations/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ports.ErrConversationNotFound, id)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch conversation %s: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var c conversation.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return &c, nil
}
