package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/producer"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq"
)

const subscribeRetryDelay = 500 * time.Millisecond

// Consumer stores reading messages from RabbitMQ through the reading model.
type Consumer struct {
	logger   *slog.Logger
	readings *models.ReadingModel
	caller   access.Caller
	client   mq.Consumer
	queue    string
	metrics  *metrics.IngestMetrics
	cancel   context.CancelFunc
	done     chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger   *slog.Logger
	Readings *models.ReadingModel
	// Caller is who the readings are written as; the policy applies to every message.
	Caller  access.Caller
	Client  mq.Consumer
	Queue   string
	Metrics *metrics.IngestMetrics // Optional metrics
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Readings == nil {
		return nil, errors.New("reading model cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if cfg.Queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	return &Consumer{
		logger:   cfg.Logger.With("queue", cfg.Queue),
		readings: cfg.Readings,
		caller:   cfg.Caller,
		client:   cfg.Client,
		queue:    cfg.Queue,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}, nil
}

// Start processes messages in the background until ctx is done or Stop is called.
// It subscribes again whenever the delivery channel closes, e.g. after a reconnect.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("starting consumer", "role", c.caller.Role())
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	if c.metrics != nil {
		c.metrics.ActiveConsumers.Inc()
		defer c.metrics.ActiveConsumers.Dec()
	}

	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Info("consumer stopped")
			return
		}

		c.logger.Info("consumer subscribed, waiting for messages")
		if !c.processMessages(ctx, deliveries) {
			c.logger.Info("consumer stopped")
			return
		}
		c.logger.Warn("deliveries channel closed, subscribing again")
	}
}

// subscribe retries Consume until it succeeds or ctx is done.
func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	for {
		deliveries, err := c.client.Consume()
		if err == nil {
			return deliveries, nil
		}
		c.logger.Debug("consume not ready, retrying", "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(subscribeRetryDelay):
		}
	}
}

// processMessages returns false once ctx is done and true when deliveries closed.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case delivery, ok := <-deliveries:
			if !ok {
				return true
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery stores one reading. Only store failures are requeued;
// duplicates, denials and malformed messages would fail the same way again.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	start := time.Now()
	status := c.process(ctx, delivery)

	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(c.queue, status).Inc()
		c.metrics.ProcessingDuration.WithLabelValues(c.queue).Observe(time.Since(start).Seconds())
	}

	if status == "requeued" {
		if err := delivery.Nack(false, true); err != nil {
			c.logger.Error("failed to nack message", "error", err)
		}
		return
	}
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
}

func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) string {
	var msg producer.ReadingMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("failed to decode reading message", "error", err)
		return "malformed"
	}

	_, err := c.readings.Insert(ctx, c.caller, msg.DeviceID, msg.Value, msg.Timestamp)
	switch models.Classify(err) {
	case models.OutcomeFound:
		c.logger.Debug("reading stored", "device_id", msg.DeviceID, "timestamp", msg.Timestamp)
		return "stored"
	case models.OutcomeConflict:
		return "duplicate"
	case models.OutcomeDenied, models.OutcomeInvalid:
		c.logger.Warn("reading rejected", "device_id", msg.DeviceID, "error", err)
		return "rejected"
	default:
		c.logger.Error("failed to store reading", "device_id", msg.DeviceID, "error", err)
		return "requeued"
	}
}

// Stop ends the processing loop, waits for it and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	if err := c.client.Close(); err != nil && !errors.Is(err, mq.ErrClosed) {
		return err
	}
	return nil
}
