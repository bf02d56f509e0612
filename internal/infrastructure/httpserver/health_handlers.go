package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// Health check handler. Dependencies are checked in parallel under one deadline.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		deps = make(map[string]string)
	)
	var g errgroup.Group
	for _, hc := range s.healthCheckers {
		if hc == nil {
			continue
		}
		hc := hc
		g.Go(func() error {
			status := "healthy"
			if err := hc.Check(ctx); err != nil {
				status = "unhealthy"
			}
			mu.Lock()
			deps[hc.Name()] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := "healthy"
	for _, status := range deps {
		if status != "healthy" {
			overall = "degraded"
			break
		}
	}
	health := map[string]interface{}{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"service":      "realtime-gateway",
		"dependencies": deps,
	}
	if s.hub != nil {
		health["sessions"] = s.hub.Sessions()
		health["rooms"] = s.hub.Rooms()
	}
	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}
