// Package backend runs the report daemon: it opens the store, runs the
// aggregator on a schedule, optionally publishes reports to RabbitMQ and
// stores readings consumed from RabbitMQ, and serves Prometheus metrics.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/report"
	"procodus.dev/weather-db/internal/scheduler"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq"
)

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	Store  docstore.Config
	Policy *access.Policy

	// Report job configuration
	Window report.Window
	Scope  report.Scope
	Every  time.Duration
	Cron   string

	// RabbitMQ configuration, optional
	RabbitMQURL string
	QueueName   string

	// ReadingQueue enables the reading consumer; readings are written as IngestCaller.
	ReadingQueue string
	IngestCaller access.Caller

	// MetricsAddr is the listen address of the /metrics endpoint; empty disables it.
	MetricsAddr string

	// Registerer receives every collector (defaults to metrics.Registry).
	Registerer prometheus.Registerer
}

// Server is the long-running report daemon.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	store     docstore.Store
	publisher *mq.Client
	consumer  *Consumer
	scheduler *scheduler.Scheduler
	http      *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store.Driver == "" {
		return nil, errors.New("store driver cannot be empty")
	}
	if (cfg.Every > 0) == (cfg.Cron != "") {
		return nil, errors.New("exactly one of interval or cron expression must be set")
	}
	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when RabbitMQ is enabled")
	}
	if cfg.ReadingQueue != "" && cfg.RabbitMQURL == "" {
		return nil, errors.New("reading queue requires a RabbitMQ URL")
	}
	if cfg.ReadingQueue != "" && !cfg.IngestCaller.Valid() {
		return nil, errors.New("reading queue requires a valid ingest role")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the daemon and blocks until a signal arrives or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting report server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := s.start(ctx); err != nil {
		if shutdownErr := s.Shutdown(); shutdownErr != nil {
			return fmt.Errorf("%w; shutdown error: %w", err, shutdownErr)
		}
		return err
	}

	s.logger.Info("report server started successfully")

	httpErr := make(chan error, 1)
	if s.http != nil {
		go func() {
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- fmt.Errorf("metrics server error: %w", err)
			}
			close(httpErr)
		}()
	}

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("metrics server error", "error", err)
			cancel()
			_ = s.Shutdown()
			return err
		}
	}

	return s.Shutdown()
}

func (s *Server) start(ctx context.Context) error {
	reg := s.config.Registerer
	if reg == nil {
		reg = metrics.Registry
	}

	store, err := docstore.Open(ctx, s.config.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store, err = docstore.NewInstrumentedStore(store, s.logger, metrics.NewStoreMetrics(reg))
	if err != nil {
		return err
	}

	m, err := models.New(&models.Config{
		Logger:  s.logger,
		Store:   s.store,
		Policy:  s.config.Policy,
		Metrics: metrics.NewModelMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}

	var notifier report.Notifier
	if s.config.RabbitMQURL != "" {
		s.publisher, err = mq.New(&mq.Config{
			Logger:  s.logger,
			Metrics: metrics.NewMQMetrics(reg),
			URL:     s.config.RabbitMQURL,
			Queue:   s.config.QueueName,
			Durable: true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize publisher: %w", err)
		}
		if notifier, err = report.NewQueueNotifier(s.publisher); err != nil {
			return err
		}
	}

	if s.config.ReadingQueue != "" {
		if err := s.startConsumer(ctx, m, reg); err != nil {
			return err
		}
	}

	aggregator, err := report.NewAggregator(&report.Config{
		Logger:   s.logger,
		Store:    s.store,
		Reports:  m.Reports,
		Notifier: notifier,
		Metrics:  metrics.NewReportMetrics(reg),
		Scope:    s.config.Scope,
		Window:   s.config.Window,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}

	s.scheduler, err = scheduler.New(&scheduler.Config{
		Logger: s.logger,
		Name:   "daily-report",
		Every:  s.config.Every,
		Cron:   s.config.Cron,
		Task: func(ctx context.Context) error {
			_, err := aggregator.Run(ctx)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	if s.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.http = &http.Server{
			Addr:              s.config.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.logger.Info("serving metrics", "address", s.config.MetricsAddr)
	}
	return nil
}

func (s *Server) startConsumer(ctx context.Context, m *models.Models, reg prometheus.Registerer) error {
	client, err := mq.New(&mq.Config{
		Logger:  s.logger.With("component", "reading-consumer"),
		URL:     s.config.RabbitMQURL,
		Queue:   s.config.ReadingQueue,
		Durable: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize reading queue client: %w", err)
	}

	s.consumer, err = NewConsumer(&ConsumerConfig{
		Logger:   s.logger,
		Readings: m.Readings,
		Caller:   s.config.IngestCaller,
		Client:   client,
		Queue:    s.config.ReadingQueue,
		Metrics:  metrics.NewIngestMetrics(reg),
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to initialize reading consumer: %w", err)
	}

	s.consumer.Start(ctx)
	return nil
}

// Shutdown stops the scheduler and the consumer first so nothing writes to a closed store.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down report server")

	var errs []error

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("consumer stop error: %w", err))
		}
		s.consumer = nil
	}

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown error: %w", err))
		}
		cancel()
		s.http = nil
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil && !errors.Is(err, mq.ErrClosed) {
			errs = append(errs, fmt.Errorf("publisher close error: %w", err))
		}
		s.publisher = nil
	}

	if s.store != nil {
		if err := s.store.Close(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
		s.store = nil
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("report server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("report server shutdown completed successfully")
	return nil
}
