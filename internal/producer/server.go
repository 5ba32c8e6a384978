package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/weather-db/pkg/generator"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq"
)

// ServerConfig holds the configuration for the producer server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the name of the queue to publish readings to
	QueueName string
	// Client replaces the RabbitMQ client built from RabbitMQURL and QueueName
	Client mq.Publisher
	// Devices are the sensors readings are generated for
	Devices []Device
	// Seed makes the generated values reproducible; zero picks a random seed
	Seed uint64
	// Start is the simulated timestamp of the first tick
	Start time.Time
	// Step is how far the simulated clock moves per tick
	Step time.Duration
	// Interval is the wall-clock time between ticks
	Interval time.Duration
	// Ticks stops the server after that many ticks; zero runs until canceled
	Ticks int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.ProducerMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server runs a Producer on a ticker.
type Server struct {
	logger   *slog.Logger
	config   *ServerConfig
	producer *Producer
	client   mq.Publisher
	metrics  *metrics.ProducerMetrics
}

var (
	errInvalidInterval = errors.New("interval must be greater than 0")
	errLoggerRequired  = errors.New("logger is required")
	errQueueRequired   = errors.New("rabbitmq URL and queue name are required")
)

// NewServer creates a new producer server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}
	if cfg.Ticks < 0 {
		return nil, errors.New("ticks cannot be negative")
	}

	client := cfg.Client
	if client == nil {
		if cfg.RabbitMQURL == "" || cfg.QueueName == "" {
			return nil, errQueueRequired
		}
		c, err := mq.New(&mq.Config{
			Logger:  cfg.Logger.With(slog.String("component", "mq-client")),
			Metrics: cfg.MQMetrics,
			URL:     cfg.RabbitMQURL,
			Queue:   cfg.QueueName,
			Durable: true,
		})
		if err != nil {
			return nil, err
		}
		client = c
	}

	producer, err := NewProducer(&Config{
		Client:    client,
		Generator: generator.New(cfg.Seed),
		Devices:   cfg.Devices,
		Start:     cfg.Start,
		Step:      cfg.Step,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Server{
		logger:   cfg.Logger,
		config:   cfg,
		producer: producer,
		client:   client,
		metrics:  cfg.Metrics,
	}, nil
}

// Run ticks the producer until a shutdown signal, ctx is done, or the
// configured number of ticks was reached. It closes the client on return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if s.metrics != nil {
		s.metrics.ActiveProducers.Inc()
		defer s.metrics.ActiveProducers.Dec()
	}

	s.logger.Info("producer server started",
		"devices", len(s.config.Devices),
		"interval", s.config.Interval,
		"start", s.producer.Clock(),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	ticks := 0
	for s.config.Ticks == 0 || ticks < s.config.Ticks {
		select {
		case sig := <-sigChan:
			s.logger.Info("received shutdown signal", "signal", sig.String())
			return s.Shutdown()
		case <-ctx.Done():
			s.logger.Info("context canceled, shutting down")
			return s.Shutdown()
		case <-ticker.C:
			ts := s.producer.Clock()
			if err := s.producer.Tick(ctx); err != nil {
				// A failed tick is logged; the next one still runs.
				s.logger.Error("failed to publish readings", "timestamp", ts, "error", err)
			} else {
				s.logger.Debug("readings published", "timestamp", ts)
			}
			ticks++
		}
	}

	s.logger.Info("producer finished", "ticks", ticks, "next", s.producer.Clock())
	return s.Shutdown()
}

// Shutdown closes the MQ client.
func (s *Server) Shutdown() error {
	s.logger.Info("closing MQ client")
	if err := s.client.Close(); err != nil && !errors.Is(err, mq.ErrClosed) {
		return fmt.Errorf("failed to close mq client: %w", err)
	}
	s.logger.Info("producer server stopped")
	return nil
}
