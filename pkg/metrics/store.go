package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for document store operations.
type StoreMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates and registers document store metrics.
// A nil registerer registers with the global Registry.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of document store operations",
			},
			[]string{"operation", "collection", "status"}, // status: success, not_found, duplicate, error
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of document store operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "collection"},
		),
	}

	register(reg, m.OperationsTotal, m.OperationDuration)

	return m
}
