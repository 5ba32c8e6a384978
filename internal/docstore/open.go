package docstore

import (
	"context"
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Mongo    *MongoConfig
	Postgres *PostgresConfig
	Driver   string
}

// Open creates the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverMongo:
		return NewMongoStore(ctx, cfg.Mongo)
	case DriverPostgres, "postgresql":
		return NewPostgresStore(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want %s, %s or %s)",
			cfg.Driver, DriverMemory, DriverMongo, DriverPostgres)
	}
}
