package backend_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/backend"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/report"
)

var _ = Describe("Report Server", func() {
	var (
		logger *slog.Logger
		config *backend.ServerConfig
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		config = &backend.ServerConfig{
			Logger:     logger,
			Store:      docstore.Config{Driver: docstore.DriverMemory},
			Window:     report.DefaultWindow,
			Scope:      report.ScopeDaily,
			Every:      50 * time.Millisecond,
			Registerer: prometheus.NewRegistry(),
		}
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server", func() {
				server, err := backend.NewServer(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})

			It("should accept a cron schedule instead of an interval", func() {
				config.Every = 0
				config.Cron = "0 1 * * *"
				_, err := backend.NewServer(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				_, err := backend.NewServer(nil)
				Expect(err).To(MatchError("server config cannot be nil"))
			})

			It("should return error when logger is nil", func() {
				config.Logger = nil
				_, err := backend.NewServer(config)
				Expect(err).To(MatchError("logger cannot be nil"))
			})

			It("should return error when the store driver is empty", func() {
				config.Store.Driver = ""
				_, err := backend.NewServer(config)
				Expect(err).To(MatchError("store driver cannot be empty"))
			})

			It("should return error without a schedule", func() {
				config.Every = 0
				_, err := backend.NewServer(config)
				Expect(err).To(HaveOccurred())
			})

			It("should return error with two schedules", func() {
				config.Cron = "0 1 * * *"
				_, err := backend.NewServer(config)
				Expect(err).To(HaveOccurred())
			})

			It("should return error when RabbitMQ has no queue", func() {
				config.RabbitMQURL = "amqp://localhost:5672"
				_, err := backend.NewServer(config)
				Expect(err).To(MatchError(ContainSubstring("queue name cannot be empty")))
			})

			It("should return error for a reading queue without RabbitMQ", func() {
				config.ReadingQueue = "readings"
				config.IngestCaller = access.Admin()
				_, err := backend.NewServer(config)
				Expect(err).To(MatchError("reading queue requires a RabbitMQ URL"))
			})

			It("should return error for a reading queue without a valid role", func() {
				config.RabbitMQURL = "amqp://localhost:5672"
				config.QueueName = "daily-reports"
				config.ReadingQueue = "readings"
				_, err := backend.NewServer(config)
				Expect(err).To(MatchError("reading queue requires a valid ingest role"))
			})
		})
	})

	Describe("Run", func() {
		It("should run until the context is canceled", func() {
			server, err := backend.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()

			Expect(server.Run(ctx)).To(Succeed())
		})

		It("should fail fast on an unknown store driver", func() {
			config.Store.Driver = "sqlite"
			server, err := backend.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			Expect(server.Run(context.Background())).To(MatchError(ContainSubstring("failed to open store")))
		})
	})

	Describe("Server Shutdown", func() {
		It("should shutdown cleanly with no initialized components", func() {
			server, err := backend.NewServer(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Shutdown()).To(Succeed())
		})

		It("should handle multiple shutdown calls", func() {
			server, err := backend.NewServer(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Shutdown()).To(Succeed())
			Expect(server.Shutdown()).To(Succeed())
		})
	})
})
