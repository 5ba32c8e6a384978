// Package docstore is the document store adapter consumed by the entity
// models and the report job. It ships an in-memory backend, a MongoDB
// backend and a PostgreSQL backend that keeps documents in a JSONB table.
package docstore

import (
	"context"
	"errors"
	"time"
)

// IDField is the field under which every backend stores the document identifier.
const IDField = "_id"

var (
	// ErrNotFound is returned when no document matches a filter.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned by InsertIfAbsent when a document with the same key exists.
	ErrDuplicate = errors.New("document already exists")
)

// Filter is an equality match on top-level document fields.
type Filter map[string]any

// ByID returns a filter matching the document with the given identifier.
func ByID(id string) Filter {
	return Filter{IDField: id}
}

// GroupQuery describes a group-by aggregation with min/max/avg reducers.
type GroupQuery struct {
	// From and To bound TimeField to [From, To) when both are set.
	From time.Time
	To   time.Time

	// GroupBy is the field documents are grouped on.
	GroupBy string
	// Field is the numeric field being reduced.
	Field string
	// TimeField is used for the time window and for day buckets.
	TimeField string

	// ByDay additionally buckets each group per UTC calendar day.
	ByDay bool
}

// Windowed reports whether the query restricts TimeField to a range.
func (q GroupQuery) Windowed() bool {
	return !q.From.IsZero() && !q.To.IsZero()
}

// Validate checks that the query names the fields it needs.
func (q GroupQuery) Validate() error {
	if q.GroupBy == "" {
		return errors.New("group by field cannot be empty")
	}
	if q.Field == "" {
		return errors.New("aggregated field cannot be empty")
	}
	if (q.ByDay || q.Windowed()) && q.TimeField == "" {
		return errors.New("time field is required for windowed or daily queries")
	}
	if q.Windowed() && !q.From.Before(q.To) {
		return errors.New("window start must be before window end")
	}
	return nil
}

// GroupStats is one aggregated group. Day is zero unless the query was ByDay.
type GroupStats struct {
	Day   time.Time `bson:"day"`
	Key   string    `bson:"key"`
	Min   float64   `bson:"min"`
	Max   float64   `bson:"max"`
	Avg   float64   `bson:"avg"`
	Count int64     `bson:"count"`
}

// Store is the contract every backend implements.
// Results are sorted by Key ascending, then Day ascending.
type Store interface {
	// FindOne decodes the first document matching filter into out.
	FindOne(ctx context.Context, collection string, filter Filter, out any) error

	// InsertOne stores doc and returns its generated identifier.
	InsertOne(ctx context.Context, collection string, doc any) (string, error)

	// InsertIfAbsent atomically stores doc unless a document matching key exists,
	// in which case it returns ErrDuplicate.
	InsertIfAbsent(ctx context.Context, collection string, key Filter, doc any) (string, error)

	// Aggregate groups a collection according to q.
	Aggregate(ctx context.Context, collection string, q GroupQuery) ([]GroupStats, error)

	// Close releases the backend's resources.
	Close(ctx context.Context) error
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
