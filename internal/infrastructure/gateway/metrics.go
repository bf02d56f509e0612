package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_sessions",
			Help: "Open gateway sessions by transport",
		},
		[]string{"transport"},
	)

	roomsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rooms",
			Help: "Conversations with at least one joined session on this node",
		},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_frames_total",
			Help: "Frames handled by the gateway by direction and event",
		},
		[]string{"direction", "event"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_frames_dropped_total",
			Help: "Frames not delivered, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(sessionsGauge, roomsGauge, framesTotal, framesDropped)
}
