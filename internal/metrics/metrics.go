package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The gateway registers its collectors on a private registry so that tests
// can exercise handlers repeatedly without duplicate-registration panics.
var registry = prometheus.NewRegistry()

var (
	// RequestsTotal counts completion requests by mode ("completion" or
	// "stream") and outcome ("ok" or "error").
	RequestsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Chat completion requests handled, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	// RequestDuration observes end-to-end completion latency by mode.
	RequestDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Chat completion request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// StreamingActive tracks SSE responses currently in flight.
	StreamingActive = promauto.With(registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_streaming_connections_active",
			Help: "SSE streaming responses currently open.",
		},
	)

	// BackendHealthChecks counts liveness probes by result.
	BackendHealthChecks = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_backend_health_checks_total",
			Help: "Backend liveness probes, by result.",
		},
		[]string{"result"},
	)
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
