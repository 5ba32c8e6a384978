package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProducerMetrics contains Prometheus metrics for the synthetic reading producer.
type ProducerMetrics struct {
	MessagesGenerated  prometheus.Counter
	GenerationFailures *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	ActiveProducers    prometheus.Gauge
	SimulatedClock     prometheus.Gauge
}

// NewProducerMetrics creates and registers producer metrics.
func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		MessagesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "messages_generated_total",
				Help:      "Total number of reading messages published",
			},
		),
		GenerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "generation_failures_total",
				Help:      "Total number of reading messages that could not be published",
			},
			[]string{"reason"}, // reason: marshal_error, push_error
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "tick_duration_seconds",
				Help:      "Duration of one tick, publishing a reading for every device",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "active_producers",
				Help:      "Number of currently running producers",
			},
		),
		SimulatedClock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "producer",
				Name:      "simulated_clock_seconds",
				Help:      "Unix time of the next reading timestamp",
			},
		),
	}

	register(reg,
		m.MessagesGenerated,
		m.GenerationFailures,
		m.GenerationDuration,
		m.ActiveProducers,
		m.SimulatedClock,
	)

	return m
}
