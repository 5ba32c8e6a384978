package docstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"procodus.dev/weather-db/pkg/metrics"
)

// InstrumentedStore records metrics and debug logs around another Store.
type InstrumentedStore struct {
	next    Store
	logger  *slog.Logger
	metrics *metrics.StoreMetrics
}

// Ensure InstrumentedStore implements Store.
var _ Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps next. Metrics are optional.
func NewInstrumentedStore(next Store, logger *slog.Logger, m *metrics.StoreMetrics) (*InstrumentedStore, error) {
	if next == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &InstrumentedStore{next: next, logger: logger, metrics: m}, nil
}

// FindOne implements Store.
func (s *InstrumentedStore) FindOne(ctx context.Context, collection string, filter Filter, out any) error {
	defer s.observe("find_one", collection, time.Now())
	err := s.next.FindOne(ctx, collection, filter, out)
	s.record("find_one", collection, err)
	return err
}

// InsertOne implements Store.
func (s *InstrumentedStore) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	defer s.observe("insert_one", collection, time.Now())
	id, err := s.next.InsertOne(ctx, collection, doc)
	s.record("insert_one", collection, err)
	return id, err
}

// InsertIfAbsent implements Store.
func (s *InstrumentedStore) InsertIfAbsent(ctx context.Context, collection string, key Filter, doc any) (string, error) {
	defer s.observe("insert_if_absent", collection, time.Now())
	id, err := s.next.InsertIfAbsent(ctx, collection, key, doc)
	s.record("insert_if_absent", collection, err)
	return id, err
}

// Aggregate implements Store.
func (s *InstrumentedStore) Aggregate(ctx context.Context, collection string, q GroupQuery) ([]GroupStats, error) {
	defer s.observe("aggregate", collection, time.Now())
	stats, err := s.next.Aggregate(ctx, collection, q)
	s.record("aggregate", collection, err)
	return stats, err
}

// Close implements Store.
func (s *InstrumentedStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

func (s *InstrumentedStore) observe(op, collection string, start time.Time) {
	if s.metrics != nil {
		s.metrics.OperationDuration.WithLabelValues(op, collection).Observe(time.Since(start).Seconds())
	}
}

func (s *InstrumentedStore) record(op, collection string, err error) {
	status := statusOf(err)
	if s.metrics != nil {
		s.metrics.OperationsTotal.WithLabelValues(op, collection, status).Inc()
	}
	if status == "error" {
		s.logger.Error("store operation failed", "operation", op, "collection", collection, "error", err)
		return
	}
	s.logger.Debug("store operation", "operation", op, "collection", collection, "status", status)
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	default:
		return "error"
	}
}
