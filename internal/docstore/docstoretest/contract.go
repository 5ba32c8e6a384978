// Package docstoretest holds the behaviour every docstore.Store backend must
// share, as ginkgo specs that backend suites can run against their store.
package docstoretest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-db/internal/docstore"
)

// ItemsCollection must be opened with a unique index on "name" by backends
// that enforce uniqueness with indexes.
const ItemsCollection = "contract_items"

// UniqueIndexes is the index layout the contract expects.
func UniqueIndexes() map[string][]string {
	return map[string][]string{ItemsCollection: {"name"}}
}

// Item is the document type the contract stores.
type Item struct {
	At    time.Time `bson:"at" json:"at"`
	ID    string    `bson:"_id,omitempty" json:"_id,omitempty"`
	Name  string    `bson:"name" json:"name"`
	Group string    `bson:"group" json:"group"`
	Value int       `bson:"value" json:"value"`
}

// Contract registers the shared specs. newStore is called before every spec.
func Contract(newStore func() docstore.Store) {
	var (
		ctx    context.Context
		store  docstore.Store
		prefix string
	)

	name := func(s string) string { return prefix + "-" + s }

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		prefix = uuid.NewString()[:8]
	})

	Describe("FindOne", func() {
		It("should return ErrNotFound when nothing matches", func() {
			var out Item
			err := store.FindOne(ctx, ItemsCollection, docstore.Filter{"name": name("missing")}, &out)
			Expect(err).To(MatchError(docstore.ErrNotFound))
		})

		It("should match on several fields including a timestamp", func() {
			at := time.Date(2020, 12, 2, 13, 30, 0, 0, time.UTC)
			_, err := store.InsertOne(ctx, ItemsCollection, Item{Name: name("t"), Group: "g", Value: 12, At: at})
			Expect(err).NotTo(HaveOccurred())

			var out Item
			Expect(store.FindOne(ctx, ItemsCollection, docstore.Filter{"name": name("t"), "at": at}, &out)).To(Succeed())
			Expect(out.Value).To(Equal(12))
			Expect(out.At).To(BeTemporally("==", at))

			err = store.FindOne(ctx, ItemsCollection, docstore.Filter{"name": name("t"), "at": at.Add(time.Hour)}, &out)
			Expect(err).To(MatchError(docstore.ErrNotFound))
		})

		It("should match timestamps given in another zone", func() {
			at := time.Date(2020, 12, 2, 13, 30, 0, 0, time.UTC)
			_, err := store.InsertOne(ctx, ItemsCollection, Item{Name: name("z"), At: at})
			Expect(err).NotTo(HaveOccurred())

			var out Item
			local := at.In(time.FixedZone("UTC+2", 2*60*60))
			Expect(store.FindOne(ctx, ItemsCollection, docstore.Filter{"name": name("z"), "at": local}, &out)).To(Succeed())
		})
	})

	Describe("InsertOne", func() {
		It("should return an identifier the document can be found by", func() {
			id, err := store.InsertOne(ctx, ItemsCollection, Item{Name: name("a"), Group: "g", Value: 7})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			var out Item
			Expect(store.FindOne(ctx, ItemsCollection, docstore.ByID(id), &out)).To(Succeed())
			Expect(out.ID).To(Equal(id))
			Expect(out.Name).To(Equal(name("a")))
			Expect(out.Value).To(Equal(7))
		})

		It("should generate distinct identifiers", func() {
			first, err := store.InsertOne(ctx, ItemsCollection, Item{Name: name("b1")})
			Expect(err).NotTo(HaveOccurred())
			second, err := store.InsertOne(ctx, ItemsCollection, Item{Name: name("b2")})
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(Equal(second))
		})
	})

	Describe("InsertIfAbsent", func() {
		It("should insert once and report duplicates afterwards", func() {
			key := docstore.Filter{"name": name("u")}

			id, err := store.InsertIfAbsent(ctx, ItemsCollection, key, Item{Name: name("u"), Value: 1})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.InsertIfAbsent(ctx, ItemsCollection, key, Item{Name: name("u"), Value: 2})
			Expect(err).To(MatchError(docstore.ErrDuplicate))

			var out Item
			Expect(store.FindOne(ctx, ItemsCollection, key, &out)).To(Succeed())
			Expect(out.ID).To(Equal(id))
			Expect(out.Value).To(Equal(1))
		})

		It("should let exactly one of many concurrent inserts win", func() {
			const writers = 16
			key := docstore.Filter{"name": name("race")}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				inserted  int
				duplicate int
			)
			for i := range writers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					_, err := store.InsertIfAbsent(ctx, ItemsCollection, key, Item{Name: name("race"), Value: i})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						inserted++
					default:
						Expect(err).To(MatchError(docstore.ErrDuplicate))
						duplicate++
					}
				}()
			}
			wg.Wait()

			Expect(inserted).To(Equal(1))
			Expect(duplicate).To(Equal(writers - 1))
		})
	})

	Describe("Aggregate", func() {
		var collection string
		day1 := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)
		day2 := day1.AddDate(0, 0, 1)

		BeforeEach(func() {
			collection = fmt.Sprintf("contract_stats_%s", prefix)
			for _, it := range []Item{
				{Group: "b", Value: 5, At: day1.Add(3 * time.Hour)},
				{Group: "a", Value: 1, At: day1.Add(30 * time.Minute)},
				{Group: "a", Value: 2, At: day1.Add(90 * time.Minute)},
				{Group: "a", Value: 6, At: day1.Add(23*time.Hour + 30*time.Minute)},
				{Group: "a", Value: 10, At: day2.Add(30 * time.Minute)},
				{Group: "a", Value: 99, At: day2.AddDate(0, 0, 5)},
			} {
				_, err := store.InsertOne(ctx, collection, it)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should reduce every document per group", func() {
			stats, err := store.Aggregate(ctx, collection, docstore.GroupQuery{GroupBy: "group", Field: "value"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(HaveLen(2))

			Expect(stats[0].Key).To(Equal("a"))
			Expect(stats[0].Min).To(Equal(1.0))
			Expect(stats[0].Max).To(Equal(99.0))
			Expect(stats[0].Avg).To(BeNumerically("~", 118.0/5, 1e-9))
			Expect(stats[0].Count).To(Equal(int64(5)))
			Expect(stats[0].Day.IsZero()).To(BeTrue())

			Expect(stats[1].Key).To(Equal("b"))
			Expect(stats[1].Count).To(Equal(int64(1)))
		})

		It("should bucket by UTC day inside the window", func() {
			stats, err := store.Aggregate(ctx, collection, docstore.GroupQuery{
				GroupBy:   "group",
				Field:     "value",
				TimeField: "at",
				From:      day1,
				To:        day1.AddDate(0, 0, 5),
				ByDay:     true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(HaveLen(3))

			Expect(stats[0].Key).To(Equal("a"))
			Expect(stats[0].Day).To(BeTemporally("==", day1))
			Expect(stats[0].Min).To(Equal(1.0))
			Expect(stats[0].Max).To(Equal(6.0))
			Expect(stats[0].Avg).To(BeNumerically("~", 3.0, 1e-9))

			Expect(stats[1].Key).To(Equal("a"))
			Expect(stats[1].Day).To(BeTemporally("==", day2))
			Expect(stats[1].Avg).To(Equal(10.0))

			Expect(stats[2].Key).To(Equal("b"))
			Expect(stats[2].Day).To(BeTemporally("==", day1))
		})

		It("should return nothing for an empty collection", func() {
			stats, err := store.Aggregate(ctx, "contract_empty_"+prefix, docstore.GroupQuery{GroupBy: "group", Field: "value"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(BeEmpty())
		})

		It("should reject an incomplete query", func() {
			_, err := store.Aggregate(ctx, collection, docstore.GroupQuery{Field: "value"})
			Expect(err).To(HaveOccurred())
		})
	})
}
