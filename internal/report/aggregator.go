// Package report computes per-device daily statistics from the weather
// readings and stores them as daily report documents.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/pkg/metrics"
)

// Scope decides what the statistics of a daily report cover.
type Scope string

const (
	// ScopeDaily computes each report from the readings of that day only.
	ScopeDaily Scope = "daily"
	// ScopeAllTime computes one aggregate per device over every reading and
	// stamps it on each day of the window.
	ScopeAllTime Scope = "all-time"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeDaily, "":
		return ScopeDaily, nil
	case ScopeAllTime, "alltime", "all_time":
		return ScopeAllTime, nil
	default:
		return "", fmt.Errorf("unknown report scope %q (want %s or %s)", s, ScopeDaily, ScopeAllTime)
	}
}

// Window is a run of consecutive UTC days starting at Start.
type Window struct {
	Start time.Time
	Days  int
}

// DefaultWindow is the five days the sample data covers.
var DefaultWindow = Window{
	Start: time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC),
	Days:  5,
}

// Dates returns midnight UTC of every day in the window.
func (w Window) Dates() []time.Time {
	start := docstore.UTCDay(w.Start)
	dates := make([]time.Time, 0, w.Days)
	for i := range w.Days {
		dates = append(dates, start.AddDate(0, 0, i))
	}
	return dates
}

// End is midnight UTC after the last day.
func (w Window) End() time.Time {
	return docstore.UTCDay(w.Start).AddDate(0, 0, w.Days)
}

// Notifier is told about every report written.
type Notifier interface {
	Notify(ctx context.Context, report models.DailyReport) error
}

// Config holds the configuration for the Aggregator.
type Config struct {
	Logger   *slog.Logger
	Store    docstore.Store
	Reports  *models.ReportModel
	Notifier Notifier              // Optional
	Metrics  *metrics.ReportMetrics // Optional metrics
	Scope    Scope
	Window   Window
}

// Summary describes a finished run.
type Summary struct {
	Scope     Scope
	DeviceIDs []string
	Reports   []models.DailyReport
	Duration  time.Duration
}

// Aggregator is the daily report batch job.
type Aggregator struct {
	logger   *slog.Logger
	store    docstore.Store
	reports  *models.ReportModel
	notifier Notifier
	metrics  *metrics.ReportMetrics
	scope    Scope
	window   Window
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(cfg *Config) (*Aggregator, error) {
	if cfg == nil {
		return nil, errors.New("aggregator config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Reports == nil {
		return nil, errors.New("report model cannot be nil")
	}
	if cfg.Window.Days <= 0 {
		return nil, errors.New("report window must span at least one day")
	}
	if cfg.Window.Start.IsZero() {
		return nil, errors.New("report window start cannot be empty")
	}

	scope := cfg.Scope
	if scope == "" {
		scope = ScopeDaily
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return nil, err
	}

	return &Aggregator{
		logger:   cfg.Logger,
		store:    cfg.Store,
		reports:  cfg.Reports,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		scope:    scope,
		window:   cfg.Window,
	}, nil
}

// Run aggregates the readings and writes the reports, sorted by device id then date.
func (a *Aggregator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	a.logger.Info("starting report run",
		"scope", a.scope,
		"window_start", a.window.Start.Format(time.DateOnly),
		"window_days", a.window.Days,
	)

	summary, err := a.run(ctx)
	duration := time.Since(start)

	if a.metrics != nil {
		a.metrics.RunDuration.Observe(duration.Seconds())
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.RunsTotal.WithLabelValues("error").Inc()
		}
		a.logger.Error("report run failed", "error", err)
		return nil, err
	}

	summary.Duration = duration
	if a.metrics != nil {
		a.metrics.RunsTotal.WithLabelValues("success").Inc()
		a.metrics.DocumentsWritten.Add(float64(len(summary.Reports)))
		a.metrics.LastRunTimestamp.SetToCurrentTime()
	}

	a.logger.Info("report run completed",
		"devices", len(summary.DeviceIDs),
		"reports", len(summary.Reports),
		"duration", duration,
	)
	return summary, nil
}

func (a *Aggregator) run(ctx context.Context) (*Summary, error) {
	reports, err := a.plan(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Scope: a.scope}
	seen := make(map[string]bool)

	for _, r := range reports {
		stored, err := a.reports.Insert(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("failed to write report for %s on %s: %w",
				r.DeviceID, r.Date.Format(time.DateOnly), err)
		}
		summary.Reports = append(summary.Reports, stored)
		if !seen[stored.DeviceID] {
			seen[stored.DeviceID] = true
			summary.DeviceIDs = append(summary.DeviceIDs, stored.DeviceID)
		}
		a.notify(ctx, stored)
	}
	return summary, nil
}

// plan computes the reports a run writes without writing them.
func (a *Aggregator) plan(ctx context.Context) ([]models.DailyReport, error) {
	query := docstore.GroupQuery{
		GroupBy:   "device_id",
		Field:     "value",
		TimeField: "timestamp",
	}
	if a.scope == ScopeDaily {
		query.From = docstore.UTCDay(a.window.Start)
		query.To = a.window.End()
		query.ByDay = true
	}

	groups, err := a.store.Aggregate(ctx, models.WeatherDataCollection, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}

	var reports []models.DailyReport
	for _, g := range groups {
		if a.scope == ScopeDaily {
			reports = append(reports, fromStats(g, g.Day))
			continue
		}
		for _, day := range a.window.Dates() {
			reports = append(reports, fromStats(g, day))
		}
	}
	return reports, nil
}

func (a *Aggregator) notify(ctx context.Context, r models.DailyReport) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, r); err != nil {
		if a.metrics != nil {
			a.metrics.NotificationErrors.Inc()
		}
		a.logger.Warn("failed to publish report",
			"device_id", r.DeviceID,
			"date", r.Date.Format(time.DateOnly),
			"error", err,
		)
	}
}

func fromStats(g docstore.GroupStats, day time.Time) models.DailyReport {
	return models.DailyReport{
		DeviceID: g.Key,
		Date:     day,
		MinValue: g.Min,
		MaxValue: g.Max,
		AvgValue: g.Avg,
	}
}
