package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels of the recompute counter
const (
	ResultOK    = "ok"
	ResultStale = "stale"
	ResultError = "error"
	ResultPanic = "panic"
)

// Metrics records recompute activity
type Metrics struct {
	Recomputes *prometheus.CounterVec
	Duration   prometheus.Histogram
	BatchSize  prometheus.Histogram
	Pending    prometheus.Gauge
}

// NewMetrics creates the provider metrics on the given registerer
func NewMetrics(registry prometheus.Registerer) *Metrics {
	auto := promauto.With(registry)
	return &Metrics{
		Recomputes: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "mimir_topology_recomputes_total",
			Help: "Total number of topology recomputes, by result.",
		}, []string{"result"}),
		Duration: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mimir_topology_recompute_duration_seconds",
			Help:    "Time spent building and publishing a topology.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		BatchSize: auto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mimir_topology_recompute_reasons",
			Help:    "Number of events that triggered a recompute.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		Pending: auto.NewGauge(prometheus.GaugeOpts{
			Name: "mimir_topology_recomputes_pending",
			Help: "Recomputes waiting for a free worker.",
		}),
	}
}
