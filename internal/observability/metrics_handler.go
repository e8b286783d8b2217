package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the /metrics endpoint the core's prometheus
// instruments are registered against, separate from the business-logic
// Metrics struct so a process can register both the core's counters and
// any collaborator's own (e.g. database/sql connection stats) on the same
// registry.
type MetricsHandler struct {
	registry *prometheus.Registry
}

// NewMetricsHandler creates a metrics handler backed by a fresh registry.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{registry: prometheus.NewRegistry()}
}

// Registry returns the underlying registry, so NewMetrics can register the
// core's instruments against the same one the handler serves.
func (h *MetricsHandler) Registry() *prometheus.Registry {
	return h.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
