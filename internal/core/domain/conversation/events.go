package conversation

import (
	"encoding/json"
	"fmt"
)

// EventName is the discriminator of a gateway frame.
type EventName string

// Server -> client.
const (
	EventConnected          EventName = "connected"
	EventGatewayReady       EventName = "gateway:ready"
	EventDisconnect         EventName = "disconnect"
	EventNewMessage         EventName = "new_message"
	EventMessageUpdated     EventName = "message_updated"
	EventMessageDeleted     EventName = "message_deleted"
	EventMessagesRead       EventName = "messages_read"
	EventUserTyping         EventName = "user_typing"
	EventError              EventName = "error"
	EventJoinedConversation EventName = "joined_conversation"
	EventLeftConversation   EventName = "left_conversation"
)

// Client -> server.
const (
	EventJoinConversation  EventName = "join_conversation"
	EventLeaveConversation EventName = "leave_conversation"
	EventTyping            EventName = "typing"
)

// Frame is one JSON message on the gateway stream.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame. A nil data leaves the payload empty.
func NewFrame(event EventName, data any) (Frame, error) {
	f := Frame{Event: event}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	f.Data = raw
	return f, nil
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

type ReadyPayload struct {
	SessionID   string      `json:"session_id"`
	Participant Participant `json:"participant"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}

type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

type TypingSignal struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
