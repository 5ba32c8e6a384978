package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQMetrics contains Prometheus metrics for the report publisher.
type MQMetrics struct {
	MessagesPushed    *prometheus.CounterVec
	PushFailures      *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	PushDuration      *prometheus.HistogramVec
	ConnectionStatus  prometheus.Gauge
}

// NewMQMetrics creates and registers MQ client metrics.
func NewMQMetrics(reg prometheus.Registerer) *MQMetrics {
	m := &MQMetrics{
		MessagesPushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "mq",
				Name:      "messages_pushed_total",
				Help:      "Total number of messages pushed to RabbitMQ",
			},
			[]string{"queue"},
		),
		PushFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "mq",
				Name:      "push_failures_total",
				Help:      "Total number of failed message pushes",
			},
			[]string{"queue", "reason"},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "mq",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of reconnection attempts",
			},
		),
		PushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "mq",
				Name:      "push_duration_seconds",
				Help:      "Duration of message push operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "mq",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
	}

	register(reg,
		m.MessagesPushed,
		m.PushFailures,
		m.ReconnectAttempts,
		m.PushDuration,
		m.ConnectionStatus,
	)

	return m
}
