package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the reading consumer.
type IngestMetrics struct {
	MessagesTotal      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ActiveConsumers    prometheus.Gauge
}

// NewIngestMetrics creates and registers reading consumer metrics.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "consumer",
				Name:      "messages_total",
				Help:      "Total number of reading messages consumed",
			},
			// status: stored, duplicate, rejected, malformed, requeued
			[]string{"queue", "status"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "consumer",
				Name:      "processing_duration_seconds",
				Help:      "Duration of message processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ActiveConsumers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "consumer",
				Name:      "active_consumers",
				Help:      "Number of active message consumers",
			},
		),
	}

	register(reg,
		m.MessagesTotal,
		m.ProcessingDuration,
		m.ActiveConsumers,
	)

	return m
}
