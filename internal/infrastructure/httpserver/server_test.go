package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/infrastructure/gateway"
	"github.com/avatarctic/realtime-core/internal/infrastructure/httpserver"
	"github.com/avatarctic/realtime-core/internal/infrastructure/repositories"
	"github.com/avatarctic/realtime-core/internal/mocks"
)

var (
	coach    = conversation.Participant{ID: "coach-1", Type: conversation.ParticipantCoach}
	client   = conversation.Participant{ID: "client-1", Type: conversation.ParticipantClient}
	outsider = conversation.Participant{ID: "client-2", Type: conversation.ParticipantClient}
)

const publishKey = "backend-key"

type fixture struct {
	t      *testing.T
	ts     *httptest.Server
	server *httpserver.Server
	hub    *gateway.Hub
	tokens *services.TokenService
}

func newFixture(t *testing.T, checkers ...ports.HealthChecker) *fixture {
	t.Helper()
	dir, err := repositories.NewStaticConversationDirectory(&conversation.Conversation{
		ID: "c1", Type: conversation.TypeDirect, Participants: []conversation.Participant{coach, client},
	})
	require.NoError(t, err)
	hub := gateway.NewHub(dir, nil, gateway.HubOptions{}, nil)
	tokens, err := services.NewTokenService("test-secret", "", time.Hour)
	require.NoError(t, err)
	server := httpserver.NewServer(&httpserver.ServerConfig{PollWait: 200 * time.Millisecond}, nil, httpserver.ServerDeps{
		Hub:            hub,
		TokenService:   tokens,
		PublishKey:     publishKey,
		HealthCheckers: checkers,
	})
	ts := httptest.NewServer(server.Echo())
	t.Cleanup(func() {
		hub.Shutdown("test done")
		ts.Close()
	})
	return &fixture{t: t, ts: ts, server: server, hub: hub, tokens: tokens}
}

func (f *fixture) token(p conversation.Participant) string {
	tok, err := f.tokens.IssueToken(p, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, path, token string, body any, header ...string) *http.Response {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, r)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) openPoll(token string) string {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/gateway/poll", token, nil)
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	var open struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&open))
	require.NotEmpty(f.t, open.SessionID)
	return open.SessionID
}

// pollUntil polls the session until a frame named event arrives.
func (f *fixture) pollUntil(sid, token string, event conversation.EventName) conversation.Frame {
	f.t.Helper()
	for i := 0; i < 10; i++ {
		resp := f.do(http.MethodGet, "/gateway/poll/"+sid, token, nil)
		if resp.StatusCode == http.StatusNoContent {
			continue
		}
		require.Equal(f.t, http.StatusOK, resp.StatusCode)
		var frames []conversation.Frame
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&frames))
		for _, fr := range frames {
			if fr.Event == event {
				return fr
			}
		}
	}
	f.t.Fatalf("no %s frame received", event)
	return conversation.Frame{}
}

func (f *fixture) dialWS(token string) *websocket.Conn {
	f.t.Helper()
	u := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/gateway"
	conn, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(f.t, err)
	_ = resp.Body.Close()
	f.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, event conversation.EventName) conversation.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var fr conversation.Frame
		require.NoError(t, conn.ReadJSON(&fr))
		if fr.Event == event {
			return fr
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event conversation.EventName, data any) {
	t.Helper()
	fr, err := conversation.NewFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(fr))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &mocks.HealthCheckerMock{NameValue: "cache"})
	resp := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"cache": "healthy"}, body["dependencies"])

	down := newFixture(t,
		&mocks.HealthCheckerMock{NameValue: "cache"},
		&mocks.HealthCheckerMock{NameValue: "redis", CheckFn: func(ctx context.Context) error { return errors.New("down") }},
	)
	resp = down.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", "", nil)
	resp := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "gateway_http_requests_total")
}

func TestGatewayRequiresToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/gateway/poll", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/gateway/poll", "forged", nil).StatusCode)

	u := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/gateway"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPollingSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	tok := f.token(client)
	sid := f.openPoll(tok)

	ready := f.pollUntil(sid, tok, conversation.EventGatewayReady)
	var payload conversation.ReadyPayload
	require.NoError(t, ready.Decode(&payload))
	assert.Equal(t, sid, payload.SessionID)
	assert.Equal(t, client, payload.Participant)

	// Test: nothing queued returns 204 after the poll wait
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodGet, "/gateway/poll/"+sid, tok, nil).StatusCode)

	resp := f.do(http.MethodPost, "/gateway/poll/"+sid, tok, conversation.Frame{Event: conversation.EventJoinConversation, Data: json.RawMessage(`{"conversation_id":"c1"}`)})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.pollUntil(sid, tok, conversation.EventJoinedConversation)

	// Test: the session belongs to its opener
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/gateway/poll/"+sid, f.token(coach), nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/gateway/poll/nope", tok, nil).StatusCode)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/gateway/poll/"+sid, tok, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/gateway/poll/"+sid, tok, nil).StatusCode)
	assert.Equal(t, 0, f.hub.Sessions())
}

func TestJoinRejectedForNonParticipant(t *testing.T) {
	f := newFixture(t)
	tok := f.token(outsider)
	sid := f.openPoll(tok)
	f.do(http.MethodPost, "/gateway/poll/"+sid, tok, conversation.Frame{Event: conversation.EventJoinConversation, Data: json.RawMessage(`{"conversation_id":"c1"}`)})

	fr := f.pollUntil(sid, tok, conversation.EventError)
	var payload conversation.ErrorPayload
	require.NoError(t, fr.Decode(&payload))
	assert.Equal(t, gateway.CodeForbidden, payload.Code)
	assert.Equal(t, 0, f.hub.Rooms())
}

func TestWebSocketTypingRelay(t *testing.T) {
	f := newFixture(t)
	coachConn := f.dialWS(f.token(coach))
	clientConn := f.dialWS(f.token(client))
	readUntil(t, coachConn, conversation.EventGatewayReady)
	readUntil(t, clientConn, conversation.EventGatewayReady)

	send(t, coachConn, conversation.EventJoinConversation, conversation.ConversationRef{ConversationID: "c1"})
	readUntil(t, coachConn, conversation.EventJoinedConversation)
	send(t, clientConn, conversation.EventJoinConversation, conversation.ConversationRef{ConversationID: "c1"})
	readUntil(t, clientConn, conversation.EventJoinedConversation)

	send(t, clientConn, conversation.EventTyping, conversation.TypingSignal{ConversationID: "c1", IsTyping: true})
	fr := readUntil(t, coachConn, conversation.EventUserTyping)
	var ev conversation.TypingEvent
	require.NoError(t, fr.Decode(&ev))
	assert.Equal(t, conversation.TypingEvent{ConversationID: "c1", Participant: client, IsTyping: true}, ev)

	// Test: malformed frames are answered, not fatal
	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("not json")))
	fr = readUntil(t, clientConn, conversation.EventError)
	var payload conversation.ErrorPayload
	require.NoError(t, fr.Decode(&payload))
	assert.Equal(t, gateway.CodeBadRequest, payload.Code)
}

func TestPublishEndpoint(t *testing.T) {
	f := newFixture(t)
	tok := f.token(client)
	sid := f.openPoll(tok)
	f.do(http.MethodPost, "/gateway/poll/"+sid, tok, conversation.Frame{Event: conversation.EventJoinConversation, Data: json.RawMessage(`{"conversation_id":"c1"}`)})
	f.pollUntil(sid, tok, conversation.EventJoinedConversation)

	msg := conversation.Message{ID: "m1", ConversationID: "c1", Sender: coach, Content: "hello", CreatedAt: time.Now().UTC()}
	frame, err := conversation.NewFrame(conversation.EventNewMessage, msg)
	require.NoError(t, err)

	path := "/internal/conversations/c1/events"
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, path, "", frame).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, path, "", frame, "X-Gateway-Key", "wrong").StatusCode)

	bad, err := conversation.NewFrame(conversation.EventTyping, conversation.TypingSignal{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, path, "", bad, "X-Gateway-Key", publishKey).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/internal/conversations/c2/events", "", frame, "X-Gateway-Key", publishKey).StatusCode)

	resp := f.do(http.MethodPost, path, "", frame, "X-Gateway-Key", publishKey)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	got := f.pollUntil(sid, tok, conversation.EventNewMessage)
	var delivered conversation.Message
	require.NoError(t, got.Decode(&delivered))
	assert.Equal(t, "hello", delivered.Content)
	assert.Equal(t, coach, delivered.Sender)
}

func TestShutdownSendsDisconnect(t *testing.T) {
	f := newFixture(t)
	conn := f.dialWS(f.token(coach))
	readUntil(t, conn, conversation.EventGatewayReady)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = f.server.Shutdown(ctx, "maintenance")

	fr := readUntil(t, conn, conversation.EventDisconnect)
	var payload conversation.DisconnectPayload
	require.NoError(t, fr.Decode(&payload))
	assert.Equal(t, "maintenance", payload.Reason)
	assert.Equal(t, 0, f.hub.Sessions())
}
