package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

func TestPollingReadStopsAfterClose(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/gateway/poll":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"session_id": "s1"})
		case r.Method == http.MethodGet && r.URL.Path == "/gateway/poll/s1":
			frames := make([]conversation.Frame, 3)
			for i := range frames {
				frames[i] = conversation.Frame{Event: conversation.EventUserTyping}
			}
			_ = json.NewEncoder(w).Encode(frames)
		case r.Method == http.MethodDelete && r.URL.Path == "/gateway/poll/s1":
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	endpoint, err := url.Parse(srv.URL + "/gateway")
	require.NoError(t, err)
	conn, err := NewPollingTransport(srv.Client()).Dial(context.Background(), endpoint, "tok")
	require.NoError(t, err)

	f, err := conn.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conversation.EventUserTyping, f.Event)

	require.NoError(t, conn.Close())
	assert.True(t, deleted)

	// Test: the rest of the batch is discarded
	_, err = conn.ReadFrame(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
