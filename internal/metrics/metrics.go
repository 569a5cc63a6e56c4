// Package metrics exposes Prometheus instrumentation for the store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors.
type Metrics struct {
	OpsApplied      *prometheus.CounterVec
	OpsFailed       *prometheus.CounterVec
	SignalsAttached prometheus.Counter
	ExternalReloads *prometheus.CounterVec
	ForestNodes     prometheus.Gauge
}

// New registers the collectors with the given registerer and returns
// them. Pass prometheus.DefaultRegisterer in production wiring.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casetree_ops_applied_total",
			Help: "Successfully applied tree operations by kind.",
		}, []string{"kind"}),
		OpsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casetree_ops_failed_total",
			Help: "Rejected tree operations by kind.",
		}, []string{"kind"}),
		SignalsAttached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "casetree_signals_attached_total",
			Help: "Signals attached to records.",
		}),
		ExternalReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casetree_external_reloads_total",
			Help: "State reloads triggered by another context, by slot.",
		}, []string{"slot"}),
		ForestNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "casetree_forest_nodes",
			Help: "Current node count in the forest.",
		}),
	}

	reg.MustRegister(m.OpsApplied, m.OpsFailed, m.SignalsAttached, m.ExternalReloads, m.ForestNodes)
	return m
}
