package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total rate limit admission checks by backend and outcome",
		},
		[]string{"backend", "result", "limit_type"},
	)

	// Buckets target sub-5ms checks; anything above 50ms indicates a slow
	// Redis round trip.
	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of rate limit admission checks",
			Buckets: []float64{.0005, .001, .002, .005, .01, .025, .05, .1, .25},
		},
		[]string{"backend"},
	)

	backendGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratelimit_backend",
			Help: "Active rate limit backend (1 for the backend in use)",
		},
		[]string{"backend"},
	)
)

func recordAllowed(backend string) {
	checksTotal.WithLabelValues(backend, "allowed", "").Inc()
}

func recordDenied(backend, limitType string) {
	checksTotal.WithLabelValues(backend, "denied", limitType).Inc()
}

func observeCheckDuration(backend string, d time.Duration) {
	checkDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func setBackendGauge(backend string) {
	for _, b := range []string{"redis", "memory", "disabled"} {
		v := 0.0
		if b == backend {
			v = 1.0
		}
		backendGauge.WithLabelValues(b).Set(v)
	}
}
