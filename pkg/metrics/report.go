package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReportMetrics contains Prometheus metrics for the daily report job.
type ReportMetrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	DocumentsWritten   prometheus.Counter
	LastRunTimestamp   prometheus.Gauge
	NotificationErrors prometheus.Counter
}

// NewReportMetrics creates and registers report job metrics.
func NewReportMetrics(reg prometheus.Registerer) *ReportMetrics {
	m := &ReportMetrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "report",
				Name:      "runs_total",
				Help:      "Total number of report job runs",
			},
			[]string{"status"}, // status: success, error
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "report",
				Name:      "run_duration_seconds",
				Help:      "Duration of report job runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DocumentsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "report",
				Name:      "documents_total",
				Help:      "Total number of daily report documents written",
			},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "report",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last successful report run",
			},
		),
		NotificationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "report",
				Name:      "notification_errors_total",
				Help:      "Total number of reports that could not be published",
			},
		),
	}

	register(reg,
		m.RunsTotal,
		m.RunDuration,
		m.DocumentsWritten,
		m.LastRunTimestamp,
		m.NotificationErrors,
	)

	return m
}
