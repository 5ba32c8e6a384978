package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoConfig holds configuration for MongoDB test container.
type MongoConfig struct {
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// StartMongo starts a MongoDB container for testing and returns the container and connection URI.
func StartMongo(ctx context.Context, config *MongoConfig) (testcontainers.Container, string, error) {
	if config == nil {
		config = &MongoConfig{}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			),
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}

	return container, fmt.Sprintf("mongodb://%s:%s/", host, port.Port()), nil
}
