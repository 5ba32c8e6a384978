package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore is a concurrency-safe in-memory Store.
// Documents keep their insertion order within a collection.
type MemoryStore struct {
	mu sync.RWMutex

	// key: collection name, value: documents in insertion order
	collections map[string][]bson.M
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]bson.M),
	}
}

// FindOne decodes the first document matching filter into out.
func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter Filter, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := canonical(filter)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.find(collection, f)
	if doc == nil {
		return ErrNotFound
	}
	return decodeInto(doc, out)
}

// InsertOne stores doc and returns its identifier.
func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m, err := canonical(doc)
	if err != nil {
		return "", err
	}
	id := withID(m, newObjectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(collection, bson.M{IDField: id}) != nil {
		return "", fmt.Errorf("%w: %s %s", ErrDuplicate, IDField, id)
	}
	s.collections[collection] = append(s.collections[collection], m)
	return id, nil
}

// InsertIfAbsent holds the write lock across the existence check and the insert.
func (s *MemoryStore) InsertIfAbsent(ctx context.Context, collection string, key Filter, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	k, err := canonical(key)
	if err != nil {
		return "", err
	}
	m, err := canonical(doc)
	if err != nil {
		return "", err
	}
	id := withID(m, newObjectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(collection, k) != nil {
		return "", ErrDuplicate
	}
	s.collections[collection] = append(s.collections[collection], m)
	return id, nil
}

// Aggregate groups the collection in memory.
func (s *MemoryStore) Aggregate(ctx context.Context, collection string, q GroupQuery) ([]GroupStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	type groupKey struct {
		day time.Time
		key string
	}
	groups := make(map[groupKey]*GroupStats)
	sums := make(map[groupKey]float64)

	s.mu.RLock()
	for _, doc := range s.collections[collection] {
		value, ok := toFloat(doc[q.Field])
		if !ok {
			continue
		}

		var ts time.Time
		if q.TimeField != "" {
			ts, ok = toTime(doc[q.TimeField])
			if !ok && (q.ByDay || q.Windowed()) {
				continue
			}
		}
		if q.Windowed() && (ts.Before(q.From) || !ts.Before(q.To)) {
			continue
		}

		gk := groupKey{key: fmt.Sprint(doc[q.GroupBy])}
		if q.ByDay {
			gk.day = UTCDay(ts)
		}

		g, exists := groups[gk]
		if !exists {
			g = &GroupStats{Key: gk.key, Day: gk.day, Min: value, Max: value}
			groups[gk] = g
		}
		if value < g.Min {
			g.Min = value
		}
		if value > g.Max {
			g.Max = value
		}
		g.Count++
		sums[gk] += value
	}
	s.mu.RUnlock()

	results := make([]GroupStats, 0, len(groups))
	for gk, g := range groups {
		g.Avg = sums[gk] / float64(g.Count)
		results = append(results, *g)
	}
	SortStats(results)
	return results, nil
}

// Close drops every collection.
func (s *MemoryStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string][]bson.M)
	return nil
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// find must be called with the lock held.
func (s *MemoryStore) find(collection string, filter bson.M) bson.M {
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			return doc
		}
	}
	return nil
}

func matches(doc, filter bson.M) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

// equal compares numbers by value, like MongoDB does across int32, int64 and double.
func equal(a, b any) bool {
	x, aNum := toFloat(a)
	y, bNum := toFloat(b)
	if aNum && bNum {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

// SortStats orders results by key, then day.
func SortStats(stats []GroupStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Key != stats[j].Key {
			return stats[i].Key < stats[j].Key
		}
		return stats[i].Day.Before(stats[j].Day)
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}
