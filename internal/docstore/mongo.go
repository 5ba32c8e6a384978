package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const dayFormat = "%Y-%m-%d"

// MongoConfig holds the MongoDB connection configuration.
type MongoConfig struct {
	Logger   *slog.Logger
	URI      string
	Database string

	// UniqueIndexes maps a collection to the fields of a unique index created at open.
	UniqueIndexes map[string][]string

	// Timeout bounds connect, ping and index creation (defaults to 10s).
	Timeout time.Duration
}

// MongoStore is a Store backed by a MongoDB database.
type MongoStore struct {
	logger *slog.Logger
	client *mongo.Client
	db     *mongo.Database
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB, verifies the connection and ensures unique indexes.
func NewMongoStore(ctx context.Context, cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		return nil, errors.New("mongo config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URI == "" {
		return nil, errors.New("mongo URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cfg.Logger.Info("connecting to mongodb", "database", cfg.Database)

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		logger: cfg.Logger,
		client: client,
		db:     client.Database(cfg.Database),
	}

	if err := s.ensureIndexes(pingCtx, cfg.UniqueIndexes); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	cfg.Logger.Info("mongodb connection established")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context, unique map[string][]string) error {
	for collection, fields := range unique {
		keys := bson.D{}
		for _, f := range fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		name := "uniq_" + strings.Join(fields, "_")

		_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(true).SetName(name),
		})
		if err != nil {
			return fmt.Errorf("failed to create index %s on %s: %w", name, collection, err)
		}
		s.logger.Debug("unique index ensured", "collection", collection, "index", name)
	}
	return nil
}

// FindOne decodes the first document matching filter into out.
func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Filter, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find document in %s: %w", collection, err)
	}
	return nil
}

// InsertOne stores doc under a generated string identifier.
func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	m, err := canonical(doc)
	if err != nil {
		return "", err
	}
	id := withID(m, newObjectID)

	if _, err := s.db.Collection(collection).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("failed to insert document into %s: %w", collection, err)
	}
	return id, nil
}

// InsertIfAbsent upserts with $setOnInsert so an existing match is left untouched.
// The unique index on the key fields closes the window between concurrent upserts.
func (s *MongoStore) InsertIfAbsent(ctx context.Context, collection string, key Filter, doc any) (string, error) {
	m, err := canonical(doc)
	if err != nil {
		return "", err
	}
	id := withID(m, newObjectID)

	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M(key),
		bson.M{"$setOnInsert": m},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("failed to insert document into %s: %w", collection, err)
	}
	if res.UpsertedCount == 0 {
		return "", ErrDuplicate
	}
	return id, nil
}

// Aggregate runs a $group pipeline sorted by key and day.
func (s *MongoStore) Aggregate(ctx context.Context, collection string, q GroupQuery) ([]GroupStats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(collection).Aggregate(ctx, buildGroupPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var results []GroupStats
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation of %s: %w", collection, err)
	}
	for i := range results {
		if !results[i].Day.IsZero() {
			results[i].Day = results[i].Day.UTC()
		}
	}
	return results, nil
}

func buildGroupPipeline(q GroupQuery) []bson.M {
	pipeline := []bson.M{}

	if q.Windowed() {
		pipeline = append(pipeline, bson.M{"$match": bson.M{
			q.TimeField: bson.M{
				"$gte": q.From.UTC(),
				"$lt":  q.To.UTC(),
			},
		}})
	}

	var groupID any = "$" + q.GroupBy
	project := bson.M{
		"_id":   0,
		"key":   "$_id",
		"min":   1,
		"max":   1,
		"avg":   1,
		"count": 1,
	}
	sort := bson.D{{Key: "key", Value: 1}}

	if q.ByDay {
		groupID = bson.M{
			"key": "$" + q.GroupBy,
			"day": bson.M{
				"$dateToString": bson.M{
					"format":   dayFormat,
					"date":     "$" + q.TimeField,
					"timezone": "UTC",
				},
			},
		}
		project["key"] = "$_id.key"
		project["day"] = bson.M{
			"$dateFromString": bson.M{
				"dateString": "$_id.day",
				"format":     dayFormat,
				"timezone":   "UTC",
			},
		}
		sort = append(sort, bson.E{Key: "day", Value: 1})
	}

	return append(pipeline,
		bson.M{"$group": bson.M{
			"_id":   groupID,
			"min":   bson.M{"$min": "$" + q.Field},
			"max":   bson.M{"$max": "$" + q.Field},
			"avg":   bson.M{"$avg": "$" + q.Field},
			"count": bson.M{"$sum": 1},
		}},
		bson.M{"$project": project},
		bson.M{"$sort": sort},
	)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("closing mongodb connection")
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
