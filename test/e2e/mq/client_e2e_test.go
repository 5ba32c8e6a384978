// Package mq provides end-to-end tests for the RabbitMQ client.
package mq

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/report"
	"procodus.dev/weather-db/pkg/metrics"
	clientmq "procodus.dev/weather-db/pkg/mq"
)

var _ = Describe("MQ Client E2E", func() {
	var (
		ctx       context.Context
		client    *clientmq.Client
		queueName string
	)

	newClient := func(url string) *clientmq.Client {
		c, err := clientmq.New(&clientmq.Config{
			Logger: testLogger,
			URL:    url,
			Queue:  queueName,
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	// connect returns a client that finished its first channel setup.
	connect := func() *clientmq.Client {
		c := newClient(rabbitmqURL)
		Eventually(c.Ready).WithTimeout(10 * time.Second).Should(BeTrue())
		return c
	}

	receive := func(deliveries <-chan amqp.Delivery) amqp.Delivery {
		var d amqp.Delivery
		Eventually(deliveries).WithTimeout(5 * time.Second).Should(Receive(&d))
		return d
	}

	BeforeEach(func() {
		ctx = context.Background()
		queueName = "test-queue-" + time.Now().Format("20060102-150405.000")
	})

	AfterEach(func() {
		if client != nil {
			_ = client.Close()
			client = nil
		}
	})

	Describe("Connection", func() {
		It("should connect to RabbitMQ successfully", func() {
			client = connect()
			Expect(client.Ready()).To(BeTrue())
		})

		It("should keep retrying an unreachable broker without becoming ready", func() {
			client = newClient("amqp://invalid:5672")
			Consistently(client.Ready).WithTimeout(500 * time.Millisecond).Should(BeFalse())
		})

		It("should report the connection status", func() {
			reg := prometheus.NewRegistry()
			m := metrics.NewMQMetrics(reg)

			var err error
			client, err = clientmq.New(&clientmq.Config{
				Logger:  testLogger,
				Metrics: m,
				URL:     rabbitmqURL,
				Queue:   queueName,
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() float64 {
				return testutil.ToFloat64(m.ConnectionStatus)
			}).WithTimeout(10 * time.Second).Should(Equal(1.0))

			Expect(client.Close()).To(Succeed())
			Expect(testutil.ToFloat64(m.ConnectionStatus)).To(Equal(0.0))
			client = nil
		})
	})

	Describe("Publishing", func() {
		BeforeEach(func() {
			client = connect()
		})

		It("should publish a message successfully", func() {
			Expect(client.Push(ctx, []byte("test message"))).To(Succeed())
		})

		It("should publish large messages successfully", func() {
			largeMessage := make([]byte, 1024*1024)
			for i := range largeMessage {
				largeMessage[i] = byte(i % 256)
			}
			Expect(client.Push(ctx, largeMessage)).To(Succeed())
		})

		It("should handle rapid successive publishes", func() {
			for range 10 {
				Expect(client.Push(ctx, []byte("rapid message"))).To(Succeed())
			}
		})

		It("should use UnsafePush without waiting for a confirmation", func() {
			Expect(client.UnsafePush(ctx, []byte("unsafe message"))).To(Succeed())
		})
	})

	Describe("Publish and Consume", func() {
		BeforeEach(func() {
			client = connect()
		})

		It("should preserve message content exactly", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			original := []byte("exact content preservation test 🎉")
			Expect(client.Push(ctx, original)).To(Succeed())

			d := receive(deliveries)
			Expect(d.Body).To(Equal(original))
			Expect(d.ContentType).To(Equal("application/json"))
			Expect(d.DeliveryMode).To(Equal(amqp.Persistent))
			Expect(d.Ack(false)).To(Succeed())
		})

		It("should deliver messages in publish order", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			for _, msg := range []string{"first", "second", "third"} {
				Expect(client.Push(ctx, []byte(msg))).To(Succeed())
			}

			received := make([]string, 0, 3)
			for range 3 {
				d := receive(deliveries)
				received = append(received, string(d.Body))
				Expect(d.Ack(false)).To(Succeed())
			}
			Expect(received).To(Equal([]string{"first", "second", "third"}))
		})

		It("should handle binary and empty payloads", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			binaryData := []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD}
			Expect(client.Push(ctx, binaryData)).To(Succeed())
			Expect(client.Push(ctx, []byte{})).To(Succeed())

			d := receive(deliveries)
			Expect(d.Body).To(Equal(binaryData))
			Expect(d.Ack(false)).To(Succeed())

			d = receive(deliveries)
			Expect(d.Body).To(BeEmpty())
			Expect(d.Ack(false)).To(Succeed())
		})
	})

	Describe("Report notifications", func() {
		BeforeEach(func() {
			client = connect()
		})

		It("should publish one JSON message per report", func() {
			deliveries, err := client.Consume()
			Expect(err).NotTo(HaveOccurred())

			notifier, err := report.NewQueueNotifier(client)
			Expect(err).NotTo(HaveOccurred())

			daily := models.DailyReport{
				ID:       "r-1",
				DeviceID: "DT001",
				Date:     time.Date(2020, 12, 3, 0, 0, 0, 0, time.UTC),
				MinValue: 19,
				MaxValue: 27,
				AvgValue: 23.5,
			}
			Expect(notifier.Notify(ctx, daily)).To(Succeed())

			d := receive(deliveries)
			Expect(d.Ack(false)).To(Succeed())

			var msg report.Message
			Expect(json.Unmarshal(d.Body, &msg)).To(Succeed())
			Expect(msg.ReportID).To(Equal("r-1"))
			Expect(msg.DeviceID).To(Equal("DT001"))
			Expect(msg.Date).To(Equal("2020-12-03"))
			Expect(msg.MinValue).To(Equal(19.0))
			Expect(msg.MaxValue).To(Equal(27.0))
			Expect(msg.AvgValue).To(Equal(23.5))
			Expect(msg.GeneratedAt).NotTo(BeZero())
		})
	})

	Describe("Resource Cleanup", func() {
		It("should close client cleanly", func() {
			client = connect()
			Expect(client.Close()).To(Succeed())
			client = nil
		})

		It("should close an unconnected client", func() {
			client = newClient("amqp://invalid:5672")
			Expect(client.Close()).To(Succeed())
			client = nil
		})

		It("should return ErrClosed on a second close", func() {
			client = connect()
			Expect(client.Close()).To(Succeed())
			Expect(client.Close()).To(MatchError(clientmq.ErrClosed))
			client = nil
		})

		It("should fail pushes after close", func() {
			client = connect()
			Expect(client.Close()).To(Succeed())

			pushCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			Expect(client.Push(pushCtx, []byte("late"))).To(HaveOccurred())
			client = nil
		})
	})
})
