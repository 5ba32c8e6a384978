package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/backend"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/producer"
	"procodus.dev/weather-db/pkg/logger"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq/mock"
)

// acknowledger records how each delivery was settled.
type acknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	settled chan struct{}
}

func newAcknowledger() *acknowledger {
	return &acknowledger{settled: make(chan struct{}, 16)}
}

func (a *acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	a.acks = append(a.acks, tag)
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *acknowledger) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	a.nacks = append(a.nacks, tag)
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *acknowledger) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks), len(a.nacks)
}

// failingStore fails every write, as an unreachable database would.
type failingStore struct {
	docstore.Store
}

func (failingStore) InsertIfAbsent(context.Context, string, docstore.Filter, any) (string, error) {
	return "", errors.New("connection refused")
}

var _ = Describe("Reading Consumer", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		store    *docstore.MemoryStore
		client   *mock.MockClient
		ack      *acknowledger
		m        *metrics.IngestMetrics
		consumer *backend.Consumer
		tag      uint64
	)

	newConsumer := func(s docstore.Store, caller access.Caller) *backend.Consumer {
		weather, err := models.New(&models.Config{Logger: logger.Discard(), Store: s})
		Expect(err).NotTo(HaveOccurred())

		c, err := backend.NewConsumer(&backend.ConsumerConfig{
			Logger:   logger.Discard(),
			Readings: weather.Readings,
			Caller:   caller,
			Client:   client,
			Queue:    "readings",
			Metrics:  m,
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	deliver := func(body []byte) {
		tag++
		client.ConsumeChannel <- amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
		Eventually(ack.settled).Should(Receive())
	}

	reading := func(deviceID string, value int, ts time.Time) []byte {
		body, err := json.Marshal(producer.ReadingMessage{DeviceID: deviceID, Value: value, Timestamp: ts})
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	status := func(s string) float64 {
		return testutil.ToFloat64(m.MessagesTotal.WithLabelValues("readings", s))
	}

	ts := time.Date(2020, 12, 1, 5, 30, 0, 0, time.UTC)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		store = docstore.NewMemoryStore()
		client = mock.NewMockClient()
		ack = newAcknowledger()
		m = metrics.NewIngestMetrics(prometheus.NewRegistry())
		tag = 0
	})

	AfterEach(func() {
		if consumer != nil {
			Expect(consumer.Stop()).To(Succeed())
			consumer = nil
		}
		cancel()
	})

	Describe("NewConsumer", func() {
		It("should validate its configuration", func() {
			_, err := backend.NewConsumer(nil)
			Expect(err).To(MatchError("consumer config cannot be nil"))

			_, err = backend.NewConsumer(&backend.ConsumerConfig{Logger: logger.Discard(), Client: client, Queue: "readings"})
			Expect(err).To(MatchError("reading model cannot be nil"))
		})
	})

	It("should store readings and ack them", func() {
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)

		deliver(reading("DT001", 23, ts))

		Expect(ack.counts()).To(Equal(1))
		Expect(status("stored")).To(Equal(1.0))
		Expect(store.Count(models.WeatherDataCollection)).To(Equal(1))
		Expect(testutil.ToFloat64(m.ActiveConsumers)).To(Equal(1.0))
	})

	It("should ack duplicates without storing them twice", func() {
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)

		deliver(reading("DT001", 23, ts))
		deliver(reading("DT001", 25, ts))

		acks, nacks := ack.counts()
		Expect(acks).To(Equal(2))
		Expect(nacks).To(BeZero())
		Expect(status("duplicate")).To(Equal(1.0))
		Expect(store.Count(models.WeatherDataCollection)).To(Equal(1))
	})

	It("should apply the policy of the ingest role", func() {
		caller, err := access.NewCaller("default")
		Expect(err).NotTo(HaveOccurred())
		consumer = newConsumer(store, caller)
		consumer.Start(ctx)

		deliver(reading("DT001", 23, ts))
		deliver(reading("DT002", 45, ts))

		Expect(status("stored")).To(Equal(1.0))
		Expect(status("rejected")).To(Equal(1.0))
		Expect(store.Count(models.WeatherDataCollection)).To(Equal(1))
	})

	It("should drop malformed messages", func() {
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)

		deliver([]byte("not json"))

		Expect(ack.counts()).To(Equal(1))
		Expect(status("malformed")).To(Equal(1.0))
	})

	It("should requeue readings the store could not write", func() {
		consumer = newConsumer(failingStore{Store: store}, access.Admin())
		consumer.Start(ctx)

		deliver(reading("DT001", 23, ts))

		acks, nacks := ack.counts()
		Expect(acks).To(BeZero())
		Expect(nacks).To(Equal(1))
		Expect(status("requeued")).To(Equal(1.0))
	})

	It("should subscribe again when the delivery channel closes", func() {
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)

		deliver(reading("DT001", 1, ts))

		first := client.ConsumeChannel
		client.SetConsume(make(chan amqp.Delivery), nil)
		close(first)

		deliver(reading("DT001", 2, ts.Add(time.Hour)))
		Expect(store.Count(models.WeatherDataCollection)).To(Equal(2))
	})

	It("should retry until the client can consume", func() {
		ready := client.ConsumeChannel
		client.SetConsume(nil, errors.New("not connected to a server"))
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)

		time.Sleep(100 * time.Millisecond)
		client.SetConsume(ready, nil)

		tag++
		Eventually(ready).WithTimeout(2 * time.Second).Should(BeSent(
			amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: reading("DT001", 3, ts)},
		))
		Eventually(ack.settled).Should(Receive())
		Expect(status("stored")).To(Equal(1.0))
	})

	It("should stop, close the client and leave no active consumer", func() {
		consumer = newConsumer(store, access.Admin())
		consumer.Start(ctx)
		Eventually(func() float64 { return testutil.ToFloat64(m.ActiveConsumers) }).Should(Equal(1.0))

		Expect(consumer.Stop()).To(Succeed())
		consumer = nil

		Expect(client.CloseCalls).To(Equal(1))
		Expect(testutil.ToFloat64(m.ActiveConsumers)).To(BeZero())
	})
})
