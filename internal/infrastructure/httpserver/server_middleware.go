package httpserver

import (
	"github.com/labstack/echo/v4/middleware"
)

// maxBodySize caps publish and poll-send payloads.
const maxBodySize = "256K"

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	cors := middleware.DefaultCORSConfig
	if len(s.config.AllowedOrigins) > 0 {
		cors.AllowOrigins = s.config.AllowedOrigins
	}
	s.echo.Use(middleware.CORSWithConfig(cors))
	s.echo.Use(middleware.BodyLimit(maxBodySize))

	s.echo.Use(s.middleware.Metrics.CollectHTTPMetrics())
	s.echo.Use(s.middleware.Logging.RequestLogging())
}
