package redis

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache reads by result (hit or miss)",
		},
		[]string{"result"},
	)

	cacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Cache operations that failed against the store",
		},
		[]string{"op"},
	)

	cacheCompressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_compressed_writes_total",
			Help: "Writes whose payload exceeded the compression threshold",
		},
	)
)

func init() {
	prometheus.MustRegister(cacheLookups, cacheErrors, cacheCompressed)
}
