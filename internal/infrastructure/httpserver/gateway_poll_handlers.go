package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/infrastructure/gateway"
	"github.com/avatarctic/realtime-core/internal/infrastructure/httpserver/helpers"
)

type pollSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) openPollSession(c echo.Context) error {
	p, err := helpers.GetParticipantFromContext(c)
	if err != nil {
		return err
	}
	session := s.hub.Register(p, gateway.TransportPolling)
	return c.JSON(http.StatusCreated, pollSessionResponse{SessionID: session.ID})
}

// pollSession resolves :sid and checks it belongs to the caller.
func (s *Server) pollSession(c echo.Context) (*gateway.Session, error) {
	p, err := helpers.GetParticipantFromContext(c)
	if err != nil {
		return nil, err
	}
	session, ok := s.hub.Session(c.Param("sid"))
	if !ok || session.Transport != gateway.TransportPolling {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	if session.Participant != p {
		return nil, echo.NewHTTPError(http.StatusForbidden, "session belongs to another participant")
	}
	return session, nil
}

// pollFrames holds the request until a frame is queued or PollWait passes.
func (s *Server) pollFrames(c echo.Context) error {
	session, err := s.pollSession(c)
	if err != nil {
		return err
	}
	frames, err := session.Poll(c.Request().Context(), s.config.PollWait)
	switch {
	case errors.Is(err, gateway.ErrSessionClosed):
		return echo.NewHTTPError(http.StatusGone, "session closed")
	case err != nil:
		// client went away
		return nil
	case len(frames) == 0:
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, frames)
}

func (s *Server) postFrame(c echo.Context) error {
	session, err := s.pollSession(c)
	if err != nil {
		return err
	}
	var f conversation.Frame
	if err := c.Bind(&f); err != nil || f.Event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "frame must have an event name")
	}
	s.hub.HandleFrame(c.Request().Context(), session, f)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) closePollSession(c echo.Context) error {
	session, err := s.pollSession(c)
	if err != nil {
		return err
	}
	s.hub.Unregister(session)
	return c.NoContent(http.StatusNoContent)
}
