package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests served by the gateway, websocket handshakes included",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Gateway HTTP latencies in seconds; long-polls included",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30},
		},
		[]string{"method", "endpoint"},
	)

	metricsHandler = promhttp.Handler()
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

// GetRequestsTotal returns the requests total metric for middleware use
func GetRequestsTotal() *prometheus.CounterVec {
	return requestsTotal
}

// GetRequestDuration returns the request duration metric for middleware use
func GetRequestDuration() *prometheus.HistogramVec {
	return requestDuration
}

// LogMetricsInitialization logs the exposed metric families
func (s *Server) LogMetricsInitialization() {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"http":             "gateway_http_requests_total, gateway_http_request_duration_seconds",
		"gateway":          "gateway_sessions, gateway_rooms, gateway_frames_total, gateway_frames_dropped_total",
		"cache":            "cache_lookups_total, cache_errors_total, cache_compressed_writes_total",
		"metrics_endpoint": "/metrics",
	}).Debug("Prometheus metrics registered")
}

func (s *Server) metricsEndpoint(c echo.Context) error {
	metricsHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}
