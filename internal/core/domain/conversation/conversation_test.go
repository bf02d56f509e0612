package conversation_test

import (
	"errors"
	"testing"
	"time"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/stretchr/testify/require"
)

func coach(id string) conversation.Participant {
	return conversation.Participant{ID: id, Type: conversation.ParticipantCoach}
}

func client(id string) conversation.Participant {
	return conversation.Participant{ID: id, Type: conversation.ParticipantClient}
}

func TestValidate_DirectNeedsTwoParticipants(t *testing.T) {
	c := &conversation.Conversation{ID: "c1", Type: conversation.TypeDirect, Participants: []conversation.Participant{coach("1")}}
	err := c.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, conversation.ErrInvalidParticipants))

	c.Participants = append(c.Participants, client("1"))
	require.NoError(t, c.Validate())
}

func TestValidate_RejectsDuplicatesAndUnknownTypes(t *testing.T) {
	dup := &conversation.Conversation{ID: "c1", Type: conversation.TypeGroup, Participants: []conversation.Participant{coach("1"), coach("1")}}
	require.ErrorIs(t, dup.Validate(), conversation.ErrInvalidParticipants)

	bad := &conversation.Conversation{ID: "c1", Type: conversation.TypeGroup, Participants: []conversation.Participant{{ID: "1", Type: "robot"}}}
	require.ErrorIs(t, bad.Validate(), conversation.ErrInvalidParticipants)

	unknown := &conversation.Conversation{ID: "c1", Type: "broadcast", Participants: []conversation.Participant{coach("1")}}
	require.ErrorIs(t, unknown.Validate(), conversation.ErrInvalidParticipants)
}

func TestParticipantKeyRoundTrip(t *testing.T) {
	p := client("42")
	require.Equal(t, "client:42", p.Key())
	back, err := conversation.ParseParticipant(p.Key())
	require.NoError(t, err)
	require.Equal(t, p, back)

	_, err = conversation.ParseParticipant("nocolon")
	require.ErrorIs(t, err, conversation.ErrInvalidParticipant)
}

func TestRecordMessageAndMarkRead(t *testing.T) {
	c := &conversation.Conversation{ID: "c1", Type: conversation.TypeDirect, Participants: []conversation.Participant{coach("1"), client("2")}}
	now := time.Now()
	c.RecordMessage(&conversation.Message{ID: "m1", Sender: coach("1"), CreatedAt: now})
	c.RecordMessage(&conversation.Message{ID: "m2", Sender: coach("1"), CreatedAt: now})

	require.Equal(t, "m2", c.LastMessageID)
	require.Equal(t, 0, c.Unread(coach("1")))
	require.Equal(t, 2, c.Unread(client("2")))
	require.True(t, c.HasParticipant(client("2")))
	require.False(t, c.HasParticipant(client("1")))

	c.MarkRead(client("2"))
	require.Equal(t, 0, c.Unread(client("2")))
}

func TestFrameDecode(t *testing.T) {
	f, err := conversation.NewFrame(conversation.EventTyping, conversation.TypingSignal{ConversationID: "c1", IsTyping: true})
	require.NoError(t, err)

	var sig conversation.TypingSignal
	require.NoError(t, f.Decode(&sig))
	require.Equal(t, "c1", sig.ConversationID)
	require.True(t, sig.IsTyping)

	empty, err := conversation.NewFrame(conversation.EventGatewayReady, nil)
	require.NoError(t, err)
	require.Error(t, empty.Decode(&sig))
}
