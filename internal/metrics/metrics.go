// Package metrics wires the router's and portal's runtime counters into
// real Prometheus collectors, completing the client_golang dependency
// the teacher already imports (for its own hand-rolled HubMetrics
// atomics) but never registers with a collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector this node exposes, in place of the
// teacher's atomic-field HubMetrics struct.
type Registry struct {
	MessagesRouted   prometheus.Counter
	MessagesFailed   prometheus.Counter
	WorkersActive    prometheus.Gauge
	DisconnectsTotal *prometheus.CounterVec
}

// NewRegistry registers every collector against reg and returns the
// bundle a router/portal can increment directly.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		MessagesRouted: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_messages_routed_total",
			Help: "Total messages successfully delivered to a mailbox.",
		}),
		MessagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "router_messages_failed_total",
			Help: "Total messages that failed to route (unknown address or denied by access control).",
		}),
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portal_workers_active",
			Help: "Number of live portal inlet/outlet workers.",
		}),
		DisconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_disconnects_total",
			Help: "Total portal worker disconnections, labeled by reason.",
		}, []string{"reason"}),
	}
}

// NewDefaultRegistry registers against prometheus.DefaultRegisterer, the
// way a single-process node normally wants it.
func NewDefaultRegistry() *Registry {
	return NewRegistry(prometheus.DefaultRegisterer)
}

// Handler returns the HTTP handler to mount at e.g. "/metrics".
func Handler() http.Handler {
	return promhttp.Handler()
}
