package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/avatarctic/realtime-core/internal/infrastructure/gateway"
	"github.com/avatarctic/realtime-core/internal/infrastructure/httpserver/helpers"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxFrameSize = 64 * 1024
)

var errSessionEnded = errors.New("session ended")

// originChecker allows same-host requests, requests without an Origin header, and any
// origin in allowed ("*" allows all).
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// websocketSession upgrades the request and pumps frames until either side closes.
func (s *Server) websocketSession(c echo.Context) error {
	p, err := helpers.GetParticipantFromContext(c)
	if err != nil {
		return err
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return nil
	}
	conn.SetReadLimit(wsMaxFrameSize)

	session := s.hub.Register(p, gateway.TransportWebSocket)
	log := s.logger.WithFields(logrus.Fields{"session_id": session.ID, "participant": p.Key()})

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		defer s.hub.Unregister(session)
		return s.readFrames(ctx, conn, session)
	})
	g.Go(func() error {
		defer conn.Close()
		return s.writeFrames(ctx, conn, session)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errSessionEnded) && !isExpectedClose(err) {
		log.WithError(err).Debug("websocket session ended with error")
	}
	return nil
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}

func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, session *gateway.Session) error {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		session.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var f conversation.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			session.Send(badFrame())
			continue
		}
		s.hub.HandleFrame(ctx, session, f)
	}
}

func (s *Server) writeFrames(ctx context.Context, conn *websocket.Conn, session *gateway.Session) error {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case f := <-session.Frames():
			if err := writeFrame(conn, f); err != nil {
				return err
			}
		case <-session.Done():
			// flush what was queued before the close, e.g. a disconnect frame
			if err := flushFrames(conn, session); err != nil {
				return err
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(wsWriteWait))
			return errSessionEnded
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func flushFrames(conn *websocket.Conn, session *gateway.Session) error {
	for {
		select {
		case f := <-session.Frames():
			if err := writeFrame(conn, f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func writeFrame(conn *websocket.Conn, f conversation.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

func badFrame() conversation.Frame {
	f, _ := conversation.NewFrame(conversation.EventError, conversation.ErrorPayload{
		Code:    gateway.CodeBadRequest,
		Message: "frames must be JSON objects with an event name",
	})
	return f
}
