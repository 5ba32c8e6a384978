package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ModelMetrics counts entity model calls by outcome.
type ModelMetrics struct {
	Outcomes *prometheus.CounterVec
	Denials  *prometheus.CounterVec
}

// NewModelMetrics creates and registers entity model metrics.
func NewModelMetrics(reg prometheus.Registerer) *ModelMetrics {
	m := &ModelMetrics{
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "model",
				Name:      "outcomes_total",
				Help:      "Total number of model calls by outcome",
			},
			[]string{"entity", "operation", "outcome"},
		),
		Denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "model",
				Name:      "denials_total",
				Help:      "Total number of calls rejected by the access policy",
			},
			[]string{"entity", "role"},
		),
	}

	register(reg, m.Outcomes, m.Denials)

	return m
}
