// Package models implements the user, device, weather reading and daily
// report models on top of the document store. Every read and write is gated
// by the access policy and every uniqueness check is an atomic
// insert-if-absent.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/pkg/metrics"
)

// Config holds the dependencies shared by all models.
type Config struct {
	Logger  *slog.Logger
	Store   docstore.Store
	Policy  *access.Policy
	Metrics *metrics.ModelMetrics // Optional metrics
}

// Models bundles one model per entity kind.
type Models struct {
	Users    *UserModel
	Devices  *DeviceModel
	Readings *ReadingModel
	Reports  *ReportModel
}

// New creates every model from a single configuration.
func New(cfg *Config) (*Models, error) {
	if cfg == nil {
		return nil, errors.New("models config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	policy := cfg.Policy
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())

	newBase := func(entity, collection string) base {
		return base{
			entity:     entity,
			collection: collection,
			store:      cfg.Store,
			policy:     policy,
			logger:     cfg.Logger.With("entity", entity),
			metrics:    cfg.Metrics,
			validate:   validate,
		}
	}

	return &Models{
		Users:    &UserModel{base: newBase("user", UsersCollection)},
		Devices:  &DeviceModel{base: newBase("device", DevicesCollection)},
		Readings: &ReadingModel{base: newBase("weather_reading", WeatherDataCollection)},
		Reports:  &ReportModel{base: newBase("daily_report", DailyReportsCollection)},
	}, nil
}

// base carries what every entity model needs.
type base struct {
	store      docstore.Store
	policy     *access.Policy
	logger     *slog.Logger
	metrics    *metrics.ModelMetrics
	validate   *validator.Validate
	entity     string
	collection string
}

func (b *base) authorize(caller access.Caller, op access.Operation, res access.Resource) error {
	err := b.policy.Authorize(caller, op, res)
	if err != nil && b.metrics != nil {
		b.metrics.Denials.WithLabelValues(b.entity, string(caller.Role())).Inc()
	}
	return err
}

func (b *base) check(doc any) error {
	if err := b.validate.Struct(doc); err != nil {
		return &ValidationError{Entity: b.entity, Err: err}
	}
	return nil
}

// done records the outcome of a call and hands err back unchanged.
// An empty role marks a call that runs without a caller.
func (b *base) done(op, role string, err error, attrs ...any) error {
	outcome := Classify(err)
	if b.metrics != nil {
		b.metrics.Outcomes.WithLabelValues(b.entity, op, outcome.String()).Inc()
	}

	if role != "" {
		attrs = append(attrs, "role", role)
	}
	attrs = append(attrs, "operation", op, "outcome", outcome.String())
	switch outcome {
	case OutcomeDenied, OutcomeConflict, OutcomeInvalid:
		b.logger.Warn(Reason(err), attrs...)
	case OutcomeFailed:
		b.logger.Error("model operation failed", append(attrs, "error", err)...)
	default:
		b.logger.Debug("model operation", attrs...)
	}
	return err
}

func findOne[T any](ctx context.Context, b *base, filter docstore.Filter) (T, error) {
	var out T
	if err := b.store.FindOne(ctx, b.collection, filter, &out); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("failed to find %s: %w", b.entity, err)
	}
	return out, nil
}

// insertUnique writes doc unless key already exists, then re-reads the
// stored document by its identifier to confirm persistence.
func insertUnique[T any](ctx context.Context, b *base, key docstore.Filter, doc T, conflict string) (T, error) {
	var zero T
	id, err := b.store.InsertIfAbsent(ctx, b.collection, key, doc)
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicate) {
			return zero, &ConflictError{Reason: conflict}
		}
		return zero, fmt.Errorf("failed to insert %s: %w", b.entity, err)
	}

	stored, err := findOne[T](ctx, b, docstore.ByID(id))
	if err != nil {
		return zero, fmt.Errorf("failed to read back %s %s: %w", b.entity, id, err)
	}
	return stored, nil
}
