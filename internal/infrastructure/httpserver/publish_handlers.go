package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
)

// Events the backend may push into a conversation room.
var publishable = map[conversation.EventName]bool{
	conversation.EventNewMessage:     true,
	conversation.EventMessageUpdated: true,
	conversation.EventMessageDeleted: true,
	conversation.EventMessagesRead:   true,
}

type publishResponse struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
	Event          string `json:"event"`
}

// publishEvent fans a backend event out to every session joined to :id. The payload is
// forwarded untouched; only its conversation_id is checked against the path.
func (s *Server) publishEvent(c echo.Context) error {
	conversationID := c.Param("id")
	var f conversation.Frame
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid frame")
	}
	if !publishable[f.Event] {
		return echo.NewHTTPError(http.StatusBadRequest, "event cannot be published: "+string(f.Event))
	}
	var ref conversation.ConversationRef
	if err := f.Decode(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if ref.ConversationID != conversationID {
		return echo.NewHTTPError(http.StatusBadRequest, "payload conversation_id does not match path")
	}
	if err := s.hub.Publish(c.Request().Context(), conversationID, f); err != nil {
		s.logger.WithField("conversation_id", conversationID).WithError(err).Error("publish failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "publish failed")
	}
	return c.JSON(http.StatusAccepted, publishResponse{Status: "accepted", ConversationID: conversationID, Event: string(f.Event)})
}
