package repositories

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
	cacheredis "github.com/avatarctic/realtime-core/internal/infrastructure/redis"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

func conversationKey(id string) string { return "conversation:" + id }
func conversationTag(id string) string { return "conversation:" + id }

func participantTag(p conversation.Participant) string { return "participant:" + p.Key() }

// CachingConversationDirectory decorates a ConversationDirectory with cache-aside.
// Entries are tagged by conversation and by each participant, so membership changes can
// be invalidated from either side.
type CachingConversationDirectory struct {
	inner  ports.ConversationDirectory
	cache  ports.Cache
	ttl    time.Duration
	logger *logrus.Logger
	sf     singleflight.Group
}

func NewCachingConversationDirectory(inner ports.ConversationDirectory, cache ports.Cache, ttl time.Duration, logger *logrus.Logger) *CachingConversationDirectory {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CachingConversationDirectory{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachingConversationDirectory) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	if c.cache == nil {
		return c.inner.GetConversation(ctx, id)
	}
	if v, ok := cacheredis.GetAs[conversation.Conversation](ctx, c.cache, conversationKey(id)); ok {
		return &v, nil
	}
	res, err, _ := c.sf.Do(id, func() (any, error) {
		conv, err := c.inner.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		c.store(ctx, conv)
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	conv, ok := res.(*conversation.Conversation)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	cp := *conv
	return &cp, nil
}

func (c *CachingConversationDirectory) store(ctx context.Context, conv *conversation.Conversation) {
	tags := make([]string, 0, len(conv.Participants)+1)
	tags = append(tags, conversationTag(conv.ID))
	for _, p := range conv.Participants {
		tags = append(tags, participantTag(p))
	}
	if err := c.cache.Set(ctx, conversationKey(conv.ID), conv, ports.WithTTL(c.ttl), ports.WithTags(tags...)); err != nil {
		c.logger.WithField("conversation_id", conv.ID).WithError(err).Warn("conversation not cached")
	}
}

// Invalidate drops the cached conversation.
func (c *CachingConversationDirectory) Invalidate(ctx context.Context, id string) int64 {
	if c.cache == nil {
		return 0
	}
	return c.cache.DelByTag(ctx, conversationTag(id))
}

// InvalidateParticipant drops every cached conversation p belongs to.
func (c *CachingConversationDirectory) InvalidateParticipant(ctx context.Context, p conversation.Participant) int64 {
	if c.cache == nil {
		return 0
	}
	return c.cache.DelByTag(ctx, participantTag(p))
}
