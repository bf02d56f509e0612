package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) Start() error {
	s.LogMetricsInitialization()

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:        addr,
		ReadTimeout: s.config.ReadTimeout,
		// Long-polls hold the response for PollWait.
		WriteTimeout: max(s.config.WriteTimeout, s.config.PollWait+s.config.PollWait/2),
		IdleTimeout:  s.config.IdleTimeout,
	}

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		s.logger.Infof("Starting HTTPS gateway on %s", addr)
		return s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	s.logger.Infof("Starting HTTP gateway on %s", addr)
	s.logger.Warn("Running in HTTP mode - TLS certificates not configured")
	return s.echo.StartServer(server)
}

// Shutdown sends every session a disconnect frame carrying reason, then stops the
// listener. Hijacked websocket connections are not tracked by the http server, so the
// hub has to close them first.
func (s *Server) Shutdown(ctx context.Context, reason string) error {
	if s.hub != nil {
		s.hub.Shutdown(reason)
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
