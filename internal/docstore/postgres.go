package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresConfig holds the PostgreSQL connection configuration.
type PostgresConfig struct {
	Logger   *slog.Logger
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int
}

// DSN builds the libpq connection string.
func (c *PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// document is the single table every collection is stored in.
// UniqueKey is only set for rows written through InsertIfAbsent.
type document struct {
	CreatedAt  time.Time      `gorm:"autoCreateTime;index:idx_documents_collection_created"`
	UniqueKey  *string        `gorm:"uniqueIndex:idx_documents_unique_key"`
	ID         string         `gorm:"primaryKey;size:64"`
	Collection string         `gorm:"not null;index:idx_documents_collection_created;uniqueIndex:idx_documents_unique_key"`
	Body       datatypes.JSON `gorm:"type:jsonb;not null"`
}

// TableName specifies the table name for document rows.
func (document) TableName() string {
	return "documents"
}

// PostgresStore is a Store that keeps documents as JSONB rows.
type PostgresStore struct {
	logger *slog.Logger
	db     *gorm.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens the database and migrates the documents table.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	cfg.Logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"dbname", cfg.DBName,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // slog handles logging
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established")

	if err := db.AutoMigrate(&document{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}

	return &PostgresStore{logger: cfg.Logger, db: db}, nil
}

// FindOne matches filter with JSONB containment.
func (s *PostgresStore) FindOne(ctx context.Context, collection string, filter Filter, out any) error {
	f, err := json.Marshal(normalizeFilter(filter))
	if err != nil {
		return fmt.Errorf("failed to encode filter: %w", err)
	}

	var row document
	err = s.db.WithContext(ctx).
		Where("collection = ? AND body @> ?::jsonb", collection, string(f)).
		Order("created_at, id").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find document in %s: %w", collection, err)
	}

	if err := json.Unmarshal(row.Body, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// InsertOne stores doc as a new row.
func (s *PostgresStore) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	row, err := newDocumentRow(collection, doc)
	if err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("failed to insert document into %s: %w", collection, err)
	}
	return row.ID, nil
}

// InsertIfAbsent relies on the (collection, unique_key) index and ON CONFLICT DO NOTHING.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, collection string, key Filter, doc any) (string, error) {
	row, err := newDocumentRow(collection, doc)
	if err != nil {
		return "", err
	}

	uniqueKey, err := UniqueKey(key)
	if err != nil {
		return "", err
	}
	row.UniqueKey = &uniqueKey

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return "", fmt.Errorf("failed to insert document into %s: %w", collection, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrDuplicate
	}
	return row.ID, nil
}

// Aggregate groups JSONB projections in SQL.
func (s *PostgresStore) Aggregate(ctx context.Context, collection string, q GroupQuery) ([]GroupStats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args := buildGroupSQL(collection, q)

	var results []GroupStats
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", collection, err)
	}
	for i := range results {
		if !results[i].Day.IsZero() {
			results[i].Day = UTCDay(results[i].Day)
		}
	}
	return results, nil
}

func buildGroupSQL(collection string, q GroupQuery) (string, []any) {
	var sb strings.Builder
	args := []any{q.GroupBy}

	sb.WriteString("SELECT body->>(?::text) AS key")
	if q.ByDay {
		sb.WriteString(", date_trunc('day', (body->>(?::text))::timestamptz AT TIME ZONE 'UTC') AS day")
		args = append(args, q.TimeField)
	}
	sb.WriteString(", MIN((body->>(?::text))::float8) AS min")
	sb.WriteString(", MAX((body->>(?::text))::float8) AS max")
	sb.WriteString(", AVG((body->>(?::text))::float8) AS avg")
	sb.WriteString(", COUNT(*) AS count")
	args = append(args, q.Field, q.Field, q.Field)

	sb.WriteString(" FROM documents WHERE collection = ? AND body->>(?::text) IS NOT NULL")
	args = append(args, collection, q.Field)

	if q.Windowed() {
		sb.WriteString(" AND (body->>(?::text))::timestamptz >= ? AND (body->>(?::text))::timestamptz < ?")
		args = append(args, q.TimeField, q.From.UTC(), q.TimeField, q.To.UTC())
	}

	if q.ByDay {
		sb.WriteString(" GROUP BY 1, 2 ORDER BY 1, 2")
	} else {
		sb.WriteString(" GROUP BY 1 ORDER BY 1")
	}
	return sb.String(), args
}

// Close closes the connection pool.
func (s *PostgresStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	s.logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// UniqueKey renders key deterministically; encoding/json sorts map keys.
func UniqueKey(key Filter) (string, error) {
	if len(key) == 0 {
		return "", errors.New("unique key cannot be empty")
	}
	data, err := json.Marshal(normalizeFilter(key))
	if err != nil {
		return "", fmt.Errorf("failed to encode unique key: %w", err)
	}
	return string(data), nil
}

func newDocumentRow(collection string, doc any) (*document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	body := map[string]any{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}

	id, _ := body[IDField].(string)
	if id == "" {
		id = uuid.NewString()
		body[IDField] = id
	}

	data, err = json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	return &document{
		ID:         id,
		Collection: collection,
		Body:       datatypes.JSON(data),
	}, nil
}

// normalizeFilter renders times in UTC so they match the encoded bodies.
func normalizeFilter(f Filter) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		out[k] = v
	}
	return out
}
