package backend

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/producer"
)

var _ = Describe("Reading ingestion E2E", func() {
	It("should store readings published by the producer", func() {
		ctx := context.Background()
		start := time.Date(2021, 1, 1, 0, 30, 0, 0, time.UTC)

		server, err := producer.NewServer(&producer.ServerConfig{
			Logger:      testLogger,
			RabbitMQURL: rabbitmqURL,
			QueueName:   readingQueueName,
			Devices:     []producer.Device{{ID: "DT001", Type: "temperature"}, {ID: "DT002", Type: "humidity"}},
			Seed:        11,
			Start:       start,
			Interval:    time.Second,
			Ticks:       3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Run(ctx)).To(Succeed())

		for _, deviceID := range []string{"DT001", "DT002"} {
			for hour := range 3 {
				ts := start.Add(time.Duration(hour) * time.Hour)
				Eventually(func() error {
					_, err := weatherModels.Readings.FindByDeviceIDAndTimestamp(ctx, access.Admin(), deviceID, ts)
					return err
				}).WithTimeout(30*time.Second).Should(Succeed(), "reading %s at %s", deviceID, ts)
			}
		}
	})
})
