package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the runs_total label.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// Metrics are the Prometheus collectors for implication sync runs.
type Metrics struct {
	TagsChecked       prometheus.Counter
	ImplicationsAdded prometheus.Counter
	Runs              *prometheus.CounterVec
	QueueRemaining    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TagsChecked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tagsync",
			Name:      "tags_checked_total",
			Help:      "Tags whose implications were looked up and applied",
		}),
		ImplicationsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tagsync",
			Name:      "implications_added_total",
			Help:      "Implication edges written to the tag graph",
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagsync",
			Name:      "runs_total",
			Help:      "Implication sync runs by outcome",
		}, []string{"outcome"}),
		QueueRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagsync",
			Name:      "queue_remaining",
			Help:      "Work items left in the queue after the last run",
		}),
		registry: reg,
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
