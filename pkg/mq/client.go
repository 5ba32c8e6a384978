// Package mq publishes report notifications to RabbitMQ. The client keeps
// reconnecting in the background and retries confirmed pushes with backoff.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-db/pkg/metrics"
)

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5
)

var (
	errNotConnected = errors.New("not connected to a server")
	errShutdown     = errors.New("client is shutting down")

	// ErrClosed is returned by Close on a client that was already closed.
	ErrClosed = errors.New("client already closed")
	// ErrMaxRetriesExceeded is returned by Push once every attempt failed.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// Config holds the configuration for the Client.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.MQMetrics // Optional metrics
	URL     string
	Queue   string
	// Durable declares the queue as durable so reports survive a broker restart.
	Durable bool
}

// Client is a RabbitMQ publisher bound to a single queue.
type Client struct {
	m       sync.Mutex
	logger  *slog.Logger
	metrics *metrics.MQMetrics
	queue   string
	durable bool

	connection      *amqp.Connection
	channel         *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool

	done      chan struct{}
	closeOnce sync.Once
}

// New validates cfg and starts connecting in the background.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("mq config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("mq URL cannot be empty")
	}
	if cfg.Queue == "" {
		return nil, errors.New("mq queue cannot be empty")
	}

	client := &Client{
		logger:  cfg.Logger.With("queue", cfg.Queue),
		metrics: cfg.Metrics,
		queue:   cfg.Queue,
		durable: cfg.Durable,
		done:    make(chan struct{}),
	}
	go client.handleReconnect(cfg.URL)
	return client, nil
}

// Ready reports whether the client currently holds an initialized channel.
func (client *Client) Ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()

	if client.metrics != nil {
		if ready {
			client.metrics.ConnectionStatus.Set(1)
		} else {
			client.metrics.ConnectionStatus.Set(0)
		}
	}
}

// handleReconnect waits for a connection error and then keeps dialing.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Info("attempting to connect")
		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := amqp.Dial(addr)
		if err != nil {
			client.logger.Error("failed to connect, retrying", "error", err)
			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		client.changeConnection(conn)
		client.logger.Info("connected")

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

// handleReInit re-initializes the channel until the connection drops or the client closes.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.logger.Error("failed to initialize channel, retrying", "error", err)
			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirming channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}
	_, err = ch.QueueDeclare(
		client.queue,
		client.durable, // Durable
		false,          // Delete when unused
		false,          // Exclusive
		false,          // No-wait
		nil,            // Arguments
	)
	if err != nil {
		return err
	}

	client.changeChannel(ch)
	client.setReady(true)
	client.logger.Info("client init done")
	return nil
}

func (client *Client) changeConnection(connection *amqp.Connection) {
	client.m.Lock()
	defer client.m.Unlock()
	client.connection = connection
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

func (client *Client) changeChannel(channel *amqp.Channel) {
	client.m.Lock()
	defer client.m.Unlock()
	client.channel = channel
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

// Push publishes data and blocks until the broker confirms it.
// While the client is disconnected it backs off exponentially, giving the
// reconnect loop time to succeed, and gives up after maxRetryAttempts.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queue))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt >= maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded", "attempts", attempt)
			client.fail("max_retries_exceeded")
			return ErrMaxRetriesExceeded
		}

		if attempt > 0 {
			if err := client.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*backoffMultiplier, maxBackoff)
		}

		if !client.Ready() {
			client.logger.Info("not connected, waiting for reconnection", "attempt", attempt)
			continue
		}

		client.m.Lock()
		confirms := client.notifyConfirm
		client.m.Unlock()

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Warn("push failed, retrying with backoff", "error", err, "attempt", attempt)
			continue
		}

		select {
		case <-ctx.Done():
			client.fail("context_canceled")
			return ctx.Err()
		case <-client.done:
			return errShutdown
		case confirm, ok := <-confirms:
			if !ok {
				client.logger.Warn("confirm channel closed, retrying", "attempt", attempt)
				continue
			}
			if !confirm.Ack {
				client.logger.Warn("push not acknowledged, retrying", "delivery_tag", confirm.DeliveryTag)
				continue
			}
			if client.metrics != nil {
				client.metrics.MessagesPushed.WithLabelValues(client.queue).Inc()
			}
			client.logger.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag, "attempt", attempt)
			return nil
		}
	}
}

func (client *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		client.fail("context_canceled")
		return ctx.Err()
	case <-client.done:
		return errShutdown
	case <-time.After(d):
		return nil
	}
}

func (client *Client) fail(reason string) {
	if client.metrics != nil {
		client.metrics.PushFailures.WithLabelValues(client.queue, reason).Inc()
	}
}

// UnsafePush publishes without waiting for a confirmation.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return errNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	return ch.PublishWithContext(
		ctx,
		"",           // Exchange
		client.queue, // Routing key
		false,        // Mandatory
		false,        // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
}

// Consume delivers queue messages. Every delivery must be acked or nacked.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return nil, errNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	if err := ch.Qos(
		1,     // prefetchCount
		0,     // prefetchSize
		false, // global
	); err != nil {
		return nil, err
	}

	return ch.Consume(
		client.queue,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
}

// Close stops the reconnect loop and closes the channel and connection.
// It is safe to call more than once; later calls return ErrClosed.
func (client *Client) Close() error {
	err := ErrClosed
	client.closeOnce.Do(func() {
		close(client.done)

		client.m.Lock()
		defer client.m.Unlock()

		err = nil
		if client.isReady {
			if cerr := client.channel.Close(); cerr != nil {
				err = cerr
			}
		}
		if client.connection != nil && !client.connection.IsClosed() {
			if cerr := client.connection.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		client.isReady = false
		if client.metrics != nil {
			client.metrics.ConnectionStatus.Set(0)
		}
	})
	return err
}
