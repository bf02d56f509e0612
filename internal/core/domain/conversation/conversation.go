package conversation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidParticipants = errors.New("invalid conversation participants")
	ErrInvalidParticipant  = errors.New("invalid participant key")
)

type ParticipantType string

const (
	ParticipantCoach  ParticipantType = "coach"
	ParticipantClient ParticipantType = "client"
	ParticipantAdmin  ParticipantType = "admin"
)

func (t ParticipantType) String() string {
	return string(t)
}

func (t ParticipantType) IsValid() bool {
	switch t {
	case ParticipantCoach, ParticipantClient, ParticipantAdmin:
		return true
	default:
		return false
	}
}

// Participant identifies one member of a conversation. The ID alone is not unique across
// participant types, so the pair is always carried together.
type Participant struct {
	ID   string          `json:"id"`
	Type ParticipantType `json:"type"`
}

// Key returns the "type:id" form used for unread counters and presence maps.
func (p Participant) Key() string {
	return string(p.Type) + ":" + p.ID
}

func (p Participant) String() string {
	return p.Key()
}

// ParseParticipant is the inverse of Participant.Key.
func ParseParticipant(key string) (Participant, error) {
	typ, id, ok := strings.Cut(key, ":")
	if !ok || typ == "" || id == "" {
		return Participant{}, fmt.Errorf("%w: %q", ErrInvalidParticipant, key)
	}
	return Participant{ID: id, Type: ParticipantType(typ)}, nil
}

type Type string

const (
	TypeDirect Type = "direct"
	TypeGroup  Type = "group"
)

type Conversation struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Participants  []Participant  `json:"participants"`
	LastMessageID string         `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	UnreadCounts  map[string]int `json:"unread_counts,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Validate checks the participant list against the conversation type.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidParticipants)
	}
	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID == "" || !p.Type.IsValid() {
			return fmt.Errorf("%w: bad participant %q", ErrInvalidParticipants, p.Key())
		}
		if _, dup := seen[p.Key()]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidParticipants, p.Key())
		}
		seen[p.Key()] = struct{}{}
	}
	switch c.Type {
	case TypeDirect:
		if len(c.Participants) != 2 {
			return fmt.Errorf("%w: direct conversation needs exactly 2 participants, got %d", ErrInvalidParticipants, len(c.Participants))
		}
	case TypeGroup:
		if len(c.Participants) == 0 {
			return fmt.Errorf("%w: group conversation has no participants", ErrInvalidParticipants)
		}
	default:
		return fmt.Errorf("%w: unknown conversation type %q", ErrInvalidParticipants, c.Type)
	}
	return nil
}

func (c *Conversation) HasParticipant(p Participant) bool {
	return slices.Contains(c.Participants, p)
}

// Unread returns the unread counter for p (0 when absent).
func (c *Conversation) Unread(p Participant) int {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[p.Key()]
}

// RecordMessage moves the last-message pointer and bumps unread counters for everyone
// except the sender.
func (c *Conversation) RecordMessage(m *Message) {
	at := m.CreatedAt
	c.LastMessageID = m.ID
	c.LastMessageAt = &at
	c.UpdatedAt = at
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int, len(c.Participants))
	}
	for _, p := range c.Participants {
		if p == m.Sender {
			continue
		}
		c.UnreadCounts[p.Key()]++
	}
}

// MarkRead clears the unread counter of reader.
func (c *Conversation) MarkRead(reader Participant) {
	if c.UnreadCounts != nil {
		delete(c.UnreadCounts, reader.Key())
	}
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         Participant  `json:"sender"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
}

type MessageDeleted struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type ReadReceipt struct {
	ConversationID string      `json:"conversation_id"`
	MessageIDs     []string    `json:"message_ids"`
	Reader         Participant `json:"reader"`
	ReadAt         time.Time   `json:"read_at"`
}

type TypingEvent struct {
	ConversationID string      `json:"conversation_id"`
	Participant    Participant `json:"participant"`
	IsTyping       bool        `json:"is_typing"`
}
