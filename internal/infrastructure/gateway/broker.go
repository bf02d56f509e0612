package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Envelope is a frame addressed to a conversation. Origin names the session that caused
// it, which is skipped on delivery.
type Envelope struct {
	ConversationID string             `json:"conversation_id"`
	Origin         string             `json:"origin,omitempty"`
	Frame          conversation.Frame `json:"frame"`
}

// Broker fans envelopes out to every node with a subscriber for the conversation.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, conversationID string, handler func(Envelope)) (unsubscribe func(), err error)
	Close() error
}

// LocalBroker delivers in-process, synchronously. Suitable for a single node.
type LocalBroker struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(Envelope)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[int]func(Envelope))}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := make([]func(Envelope), 0, len(b.subs[env.ConversationID]))
	for _, h := range b.subs[env.ConversationID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, conversationID string, handler func(Envelope)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]func(Envelope))
	}
	b.subs[conversationID][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[conversationID], id)
		if len(b.subs[conversationID]) == 0 {
			delete(b.subs, conversationID)
		}
	}, nil
}

func (b *LocalBroker) Close() error { return nil }

// RedisBroker fans out over Redis PUB/SUB, one channel per conversation, so sessions on
// different gateway nodes share rooms.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

func NewRedisBroker(client *redis.Client, prefix string, logger *logrus.Logger) *RedisBroker {
	if prefix == "" {
		prefix = "gateway"
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(conversationID string) string {
	return b.prefix + ":conversation:" + conversationID
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(env.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", env.ConversationID, err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server.
func (b *RedisBroker) Subscribe(ctx context.Context, conversationID string, handler func(Envelope)) (func(), error) {
	ps := b.client.Subscribe(ctx, b.channel(conversationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, err)
	}
	msgs := ps.Channel()
	go func() {
		for msg := range msgs {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.WithField("channel", msg.Channel).WithError(err).Warn("dropping malformed envelope")
				continue
			}
			handler(env)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { _ = ps.Close() })
	}, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBroker) Close() error { return nil }
