package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is what report notification needs from a queue.
type Publisher interface {
	// Push publishes data and waits for the broker to confirm it.
	Push(ctx context.Context, data []byte) error

	// Close shuts the publisher down.
	Close() error
}

// Consumer is what reading ingestion needs from a queue.
type Consumer interface {
	// Consume delivers queue messages; each delivery must be acked or nacked.
	Consume() (<-chan amqp.Delivery, error)

	// Close shuts the consumer down.
	Close() error
}

// ClientInterface is the full surface of Client.
type ClientInterface interface {
	Publisher
	Consumer

	// UnsafePush publishes without waiting for a confirmation.
	UnsafePush(ctx context.Context, data []byte) error
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)
