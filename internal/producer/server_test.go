package producer_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-db/internal/producer"
	"procodus.dev/weather-db/pkg/logger"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq/mock"
)

var _ = Describe("Producer Server", func() {
	var (
		client *mock.MockClient
		config *producer.ServerConfig
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		config = &producer.ServerConfig{
			Logger:   logger.Discard(),
			Client:   client,
			Devices:  []producer.Device{{ID: "DT001", Type: "temperature"}},
			Seed:     3,
			Start:    time.Date(2020, 12, 1, 0, 30, 0, 0, time.UTC),
			Interval: 10 * time.Millisecond,
		}
	})

	Describe("NewServer", func() {
		It("should create a server", func() {
			server, err := producer.NewServer(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(server).NotTo(BeNil())
		})

		It("should return error for nil config", func() {
			_, err := producer.NewServer(nil)
			Expect(err).To(MatchError("server config cannot be nil"))
		})

		It("should return error without a logger", func() {
			config.Logger = nil
			_, err := producer.NewServer(config)
			Expect(err).To(MatchError("logger is required"))
		})

		It("should return error for zero interval", func() {
			config.Interval = 0
			_, err := producer.NewServer(config)
			Expect(err).To(MatchError("interval must be greater than 0"))
		})

		It("should return error for negative ticks", func() {
			config.Ticks = -1
			_, err := producer.NewServer(config)
			Expect(err).To(HaveOccurred())
		})

		It("should require a queue when no client is given", func() {
			config.Client = nil
			_, err := producer.NewServer(config)
			Expect(err).To(MatchError("rabbitmq URL and queue name are required"))
		})

		It("should close the client when the producer cannot be built", func() {
			config.Devices = nil
			_, err := producer.NewServer(config)
			Expect(err).To(HaveOccurred())
			Expect(client.CloseCalls).To(Equal(1))
		})
	})

	Describe("Run", func() {
		It("should stop after the configured number of ticks", func() {
			config.Ticks = 3
			server, err := producer.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			Expect(server.Run(context.Background())).To(Succeed())
			Expect(client.Pushed()).To(HaveLen(3))
			Expect(client.CloseCalls).To(Equal(1))
		})

		It("should stop when the context is canceled", func() {
			reg := prometheus.NewRegistry()
			config.Metrics = metrics.NewProducerMetrics(reg)

			server, err := producer.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- server.Run(ctx) }()

			Eventually(func() int { return len(client.Pushed()) }).Should(BeNumerically(">=", 2))
			Expect(testutil.ToFloat64(config.Metrics.ActiveProducers)).To(Equal(1.0))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(testutil.ToFloat64(config.Metrics.ActiveProducers)).To(BeZero())
			Expect(client.CloseCalls).To(Equal(1))
		})

		It("should keep ticking after a failed push", func() {
			client.PushError = context.DeadlineExceeded
			config.Ticks = 2

			server, err := producer.NewServer(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Run(context.Background())).To(Succeed())
			Expect(client.Pushed()).To(HaveLen(2))
		})
	})
})
