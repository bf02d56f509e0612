package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/core/ports"
)

// StaticConversationDirectory serves a fixed set of conversations from memory. Used by
// the dev gateway and tests.
type StaticConversationDirectory struct {
	mu    sync.RWMutex
	convs map[string]conversation.Conversation
}

func NewStaticConversationDirectory(convs ...*conversation.Conversation) (*StaticConversationDirectory, error) {
	d := &StaticConversationDirectory{convs: make(map[string]conversation.Conversation, len(convs))}
	for _, c := range convs {
		if err := d.Put(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Put validates and stores a copy of c, replacing any conversation with the same id.
func (d *StaticConversationDirectory) Put(c *conversation.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	cp := *c
	cp.Participants = append([]conversation.Participant(nil), c.Participants...)
	d.mu.Lock()
	d.convs[c.ID] = cp
	d.mu.Unlock()
	return nil
}

func (d *StaticConversationDirectory) Delete(id string) {
	d.mu.Lock()
	delete(d.convs, id)
	d.mu.Unlock()
}

func (d *StaticConversationDirectory) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	d.mu.RLock()
	c, ok := d.convs[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrConversationNotFound, id)
	}
	c.Participants = append([]conversation.Participant(nil), c.Participants...)
	return &c, nil
}

// ParseSeedConversations reads "id=type:pid,type:pid;id2=..." into conversations. Two
// participants make a direct conversation, anything else a group.
func ParseSeedConversations(seed string) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	now := time.Now().UTC()
	for _, entry := range strings.Split(seed, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, members, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("seed entry %q: expected id=participants", entry)
		}
		c := &conversation.Conversation{ID: strings.TrimSpace(id), CreatedAt: now, UpdatedAt: now}
		for _, key := range strings.Split(members, ",") {
			p, err := conversation.ParseParticipant(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("seed entry %q: %w", entry, err)
			}
			c.Participants = append(c.Participants, p)
		}
		c.Type = conversation.TypeGroup
		if len(c.Participants) == 2 {
			c.Type = conversation.TypeDirect
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %q: %w", entry, err)
		}
		out = append(out, c)
	}
	return out, nil
}
