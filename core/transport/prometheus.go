package transport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsRegistry constructs a fresh prometheus.Registry for a process,
// handed to core/observe.NewMetricsObserver as its Registerer and to
// MetricsHandler as its Gatherer — the same registry backs both write and
// read sides of `/metrics`.
func NewMetricsRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// MetricsHandler returns the http.Handler cmd/dipeo mounts at `/metrics`,
// serving whatever the registry has collected in Prometheus exposition
// format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
