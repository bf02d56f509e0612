package repositories

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	config "github.com/avatarctic/realtime-core/configs"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	"github.com/avatarctic/realtime-core/internal/mocks"
	cacheredis "github.com/avatarctic/realtime-core/internal/infrastructure/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	coachAda  = conversation.Participant{ID: "ada", Type: conversation.ParticipantCoach}
	clientBob = conversation.Participant{ID: "bob", Type: conversation.ParticipantClient}
	clientCy  = conversation.Participant{ID: "cy", Type: conversation.ParticipantClient}
)

func direct(id string) *conversation.Conversation {
	return &conversation.Conversation{ID: id, Type: conversation.TypeDirect, Participants: []conversation.Participant{coachAda, clientBob}}
}

func TestParseSeedConversations(t *testing.T) {
	convs, err := ParseSeedConversations("c1=coach:ada,client:bob; g1=coach:ada,client:bob,client:cy ;")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c1", convs[0].ID)
	assert.Equal(t, conversation.TypeDirect, convs[0].Type)
	assert.Equal(t, []conversation.Participant{coachAda, clientBob}, convs[0].Participants)
	assert.Equal(t, conversation.TypeGroup, convs[1].Type)
	assert.Len(t, convs[1].Participants, 3)

	// Test: malformed entries
	for _, bad := range []string{"c1", "=coach:ada", "c1=coach", "c1=robot:x,client:y", "c1=coach:ada,coach:ada"} {
		_, err := ParseSeedConversations(bad)
		assert.Error(t, err, bad)
	}

	convs, err = ParseSeedConversations("")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestStaticConversationDirectory(t *testing.T) {
	d, err := NewStaticConversationDirectory(direct("c1"))
	require.NoError(t, err)

	got, err := d.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, got.HasParticipant(clientBob))

	// Test: returned copies do not alias stored state
	got.Participants[0] = clientCy
	again, err := d.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, coachAda, again.Participants[0])

	_, err = d.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrConversationNotFound)

	d.Delete("c1")
	_, err = d.GetConversation(context.Background(), "c1")
	assert.ErrorIs(t, err, ports.ErrConversationNotFound)

	assert.Error(t, d.Put(&conversation.Conversation{ID: "bad", Type: conversation.TypeDirect, Participants: []conversation.Participant{coachAda}}))
}

func TestRESTConversationDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/conversations/c1":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(direct("c1"))
		case "/api/v1/conversations/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	d, err := NewRESTConversationDirectory(srv.URL+"/", "svc-token", time.Second)
	require.NoError(t, err)

	got, err := d.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.True(t, got.HasParticipant(coachAda))

	_, err = d.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrConversationNotFound)

	_, err = d.GetConversation(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	unauth, err := NewRESTConversationDirectory(srv.URL, "", time.Second)
	require.NoError(t, err)
	_, err = unauth.GetConversation(context.Background(), "c1")
	assert.Error(t, err)

	_, err = NewRESTConversationDirectory("not a url", "", 0)
	assert.Error(t, err)
}

func newCache(t *testing.T) (*miniredis.Miniredis, *cacheredis.CacheService) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := cacheredis.NewCacheService(&config.RedisConfig{Host: mr.Host(), Port: mr.Port()}, &config.CacheConfig{KeyPrefix: "dir"}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Connect(context.Background()))
	t.Cleanup(func() { _ = svc.Disconnect() })
	return mr, svc
}

func TestCachingConversationDirectory_CachesAndTags(t *testing.T) {
	mr, cache := newCache(t)
	var loads atomic.Int32
	inner := &mocks.ConversationDirectoryMock{GetConversationFn: func(ctx context.Context, id string) (*conversation.Conversation, error) {
		loads.Add(1)
		return direct(id), nil
	}}
	d := NewCachingConversationDirectory(inner, cache, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := d.GetConversation(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ID)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, mr.Exists("dir:conversation:c1"))

	members, err := mr.SMembers("dir:__tag__:participant:client:bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir:conversation:c1"}, members)

	// Test: participant invalidation forces a reload
	assert.Equal(t, int64(1), d.InvalidateParticipant(ctx, clientBob))
	_, err = d.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())

	assert.Equal(t, int64(1), d.Invalidate(ctx, "c1"))
	assert.False(t, mr.Exists("dir:conversation:c1"))
}

func TestCachingConversationDirectory_ErrorsNotCached(t *testing.T) {
	mr, cache := newCache(t)
	inner := &mocks.ConversationDirectoryMock{}
	d := NewCachingConversationDirectory(inner, cache, time.Minute, nil)

	_, err := d.GetConversation(context.Background(), "ghost")
	assert.ErrorIs(t, err, ports.ErrConversationNotFound)
	assert.False(t, mr.Exists("dir:conversation:ghost"))
}

func TestCachingConversationDirectory_CoalescesMisses(t *testing.T) {
	_, cache := newCache(t)
	var loads atomic.Int32
	release := make(chan struct{})
	inner := &mocks.ConversationDirectoryMock{GetConversationFn: func(ctx context.Context, id string) (*conversation.Conversation, error) {
		loads.Add(1)
		<-release
		return direct(id), nil
	}}
	d := NewCachingConversationDirectory(inner, cache, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.GetConversation(context.Background(), "c1")
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestCachingConversationDirectory_StoreDownFallsThrough(t *testing.T) {
	mr, cache := newCache(t)
	mr.Close()
	inner := &mocks.ConversationDirectoryMock{GetConversationFn: func(ctx context.Context, id string) (*conversation.Conversation, error) {
		return direct(id), nil
	}}
	d := NewCachingConversationDirectory(inner, cache, time.Minute, nil)
	got, err := d.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}

func TestRateLimitRedisRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cacheredis.NewRedisClient(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRateLimitRedisRepository(client)
	fixed := time.Unix(1_700_000_000, 0)
	repo.now = func() time.Time { return fixed }

	for want := 1; want <= 3; want++ {
		n, start, err := repo.IncrementWindow(context.Background(), "conv-1", time.Minute, "rl", 2*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.Equal(t, fixed.Truncate(time.Minute), start)
	}
	key := "rl:conv-1:" + strconv.FormatInt(fixed.Truncate(time.Minute).Unix(), 10)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Minute, mr.TTL(key))

	// Test: next window starts over
	repo.now = func() time.Time { return fixed.Add(time.Minute) }
	n, _, err := repo.IncrementWindow(context.Background(), "conv-1", time.Minute, "rl", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
