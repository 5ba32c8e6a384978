package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresConfig holds configuration for PostgreSQL test container.
type PostgresConfig struct {
	// User is the PostgreSQL username (default: postgres)
	User string
	// Password is the PostgreSQL password (default: postgres)
	Password string
	// Database is the database name (default: testdb)
	Database string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// PostgresEndpoint is where a started container accepts connections.
type PostgresEndpoint struct {
	Host     string
	User     string
	Password string
	Database string
	Port     int
}

// StartPostgres starts a PostgreSQL container for testing and returns the container and its endpoint.
func StartPostgres(ctx context.Context, config *PostgresConfig) (testcontainers.Container, PostgresEndpoint, error) {
	if config == nil {
		config = &PostgresConfig{}
	}
	if config.User == "" {
		config.User = "postgres"
	}
	if config.Password == "" {
		config.Password = "postgres"
	}
	if config.Database == "" {
		config.Database = "testdb"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				// The entrypoint restarts the server once after init, so the line shows twice.
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			),
			Env: map[string]string{
				"POSTGRES_USER":     config.User,
				"POSTGRES_PASSWORD": config.Password,
				"POSTGRES_DB":       config.Database,
			},
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, PostgresEndpoint{}, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, PostgresEndpoint{}, fmt.Errorf("failed to get container host: %w (cleanup error: %w)", err, termErr)
		}
		return nil, PostgresEndpoint{}, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, PostgresEndpoint{}, fmt.Errorf("failed to get container port: %w (cleanup error: %w)", err, termErr)
		}
		return nil, PostgresEndpoint{}, fmt.Errorf("failed to get container port: %w", err)
	}

	return container, PostgresEndpoint{
		Host:     host,
		Port:     port.Int(),
		User:     config.User,
		Password: config.Password,
		Database: config.Database,
	}, nil
}
