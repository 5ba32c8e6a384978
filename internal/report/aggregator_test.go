package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
	"procodus.dev/weather-db/internal/models"
	"procodus.dev/weather-db/internal/report"
	"procodus.dev/weather-db/pkg/logger"
	"procodus.dev/weather-db/pkg/metrics"
	"procodus.dev/weather-db/pkg/mq/mock"
)

var day1 = time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)

var _ = Describe("Window", func() {
	It("should list every day from midnight UTC", func() {
		w := report.Window{Start: day1.Add(15 * time.Hour), Days: 3}
		Expect(w.Dates()).To(Equal([]time.Time{day1, day1.AddDate(0, 0, 1), day1.AddDate(0, 0, 2)}))
		Expect(w.End()).To(Equal(day1.AddDate(0, 0, 3)))
	})

	It("should default to the first five days of December 2020", func() {
		Expect(report.DefaultWindow.Dates()).To(HaveLen(5))
		Expect(report.DefaultWindow.Start).To(Equal(day1))
	})
})

var _ = Describe("ParseScope", func() {
	DescribeTable("accepts known scopes",
		func(in string, want report.Scope) {
			Expect(report.ParseScope(in)).To(Equal(want))
		},
		Entry("empty", "", report.ScopeDaily),
		Entry("daily", "daily", report.ScopeDaily),
		Entry("all-time", "all-time", report.ScopeAllTime),
		Entry("upper case", "ALL-TIME", report.ScopeAllTime),
		Entry("underscore", "all_time", report.ScopeAllTime),
	)

	It("should reject anything else", func() {
		_, err := report.ParseScope("weekly")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Aggregator", func() {
	var (
		ctx   context.Context
		store *docstore.MemoryStore
		m     *models.Models
		cfg   *report.Config
	)

	addReadings := func(deviceID string, day time.Time, values ...int) {
		for hour, v := range values {
			ts := day.Add(time.Duration(hour)*time.Hour + 30*time.Minute)
			_, err := m.Readings.Insert(ctx, access.Admin(), deviceID, v, ts)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	hourly := func() []int {
		values := make([]int, 24)
		for i := range values {
			values[i] = i
		}
		return values
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = docstore.NewMemoryStore()

		var err error
		m, err = models.New(&models.Config{Logger: logger.Discard(), Store: store})
		Expect(err).NotTo(HaveOccurred())

		cfg = &report.Config{
			Logger:  logger.Discard(),
			Store:   store,
			Reports: m.Reports,
			Window:  report.DefaultWindow,
		}
	})

	Describe("NewAggregator", func() {
		It("should validate its configuration", func() {
			_, err := report.NewAggregator(nil)
			Expect(err).To(HaveOccurred())

			for _, mutate := range []func(c *report.Config){
				func(c *report.Config) { c.Logger = nil },
				func(c *report.Config) { c.Store = nil },
				func(c *report.Config) { c.Reports = nil },
				func(c *report.Config) { c.Window.Days = 0 },
				func(c *report.Config) { c.Window.Start = time.Time{} },
				func(c *report.Config) { c.Scope = "weekly" },
			} {
				broken := *cfg
				mutate(&broken)
				_, err := report.NewAggregator(&broken)
				Expect(err).To(HaveOccurred())
			}
		})
	})

	Context("with all-time scope", func() {
		BeforeEach(func() {
			cfg.Scope = report.ScopeAllTime
		})

		It("should replicate one aggregate of DT001 across the five days", func() {
			addReadings("DT001", day1, hourly()...)

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.DeviceIDs).To(Equal([]string{"DT001"}))
			Expect(summary.Reports).To(HaveLen(5))
			for i, r := range summary.Reports {
				Expect(r.DeviceID).To(Equal("DT001"))
				Expect(r.Date).To(Equal(day1.AddDate(0, 0, i)))
				Expect(r.MinValue).To(Equal(0.0))
				Expect(r.MaxValue).To(Equal(23.0))
				Expect(r.AvgValue).To(Equal(11.5))
			}
			Expect(store.Count(models.DailyReportsCollection)).To(Equal(5))
		})

		It("should write N times five reports sorted by device id", func() {
			addReadings("DT003", day1, 40, 50)
			addReadings("DT001", day1.AddDate(0, 0, 2), 20)
			addReadings("DT002", day1.AddDate(0, 0, 9), 30)

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Reports).To(HaveLen(15))
			Expect(summary.DeviceIDs).To(Equal([]string{"DT001", "DT002", "DT003"}))
			for i, r := range summary.Reports {
				Expect(r.DeviceID).To(Equal(summary.DeviceIDs[i/5]))
			}
			Expect(summary.Reports[10].AvgValue).To(Equal(45.0))
		})
	})

	Context("with daily scope", func() {
		It("should write one report for the only day with readings", func() {
			addReadings("DT001", day1, hourly()...)

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Scope).To(Equal(report.ScopeDaily))
			Expect(summary.Reports).To(HaveLen(1))
			Expect(summary.Reports[0].Date).To(Equal(day1))
			Expect(summary.Reports[0].AvgValue).To(Equal(11.5))

			stored, err := m.Reports.FindByDeviceIDAndDate(ctx, "DT001", day1)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(summary.Reports[0].ID))
		})

		It("should compute each day from its own readings and ignore days outside the window", func() {
			addReadings("DT001", day1, 10, 20)
			addReadings("DT001", day1.AddDate(0, 0, 1), 30)
			addReadings("DT001", day1.AddDate(0, 0, 5), 99)

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Reports).To(HaveLen(2))
			Expect(summary.Reports[0].AvgValue).To(Equal(15.0))
			Expect(summary.Reports[1].Date).To(Equal(day1.AddDate(0, 0, 1)))
			Expect(summary.Reports[1].MaxValue).To(Equal(30.0))
		})

		It("should append on a second run", func() {
			addReadings("DT001", day1, 10)

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Count(models.DailyReportsCollection)).To(Equal(2))
		})

		It("should write nothing without readings", func() {
			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Reports).To(BeEmpty())
		})
	})

	Describe("metrics", func() {
		It("should record successful and failed runs", func() {
			addReadings("DT001", day1, 10, 20)
			cfg.Metrics = metrics.NewReportMetrics(prometheus.NewRegistry())

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = agg.Run(canceled)
			Expect(err).To(HaveOccurred())

			Expect(testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues("success"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues("error"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(cfg.Metrics.DocumentsWritten)).To(Equal(1.0))
		})
	})

	Describe("notifications", func() {
		var client *mock.MockClient

		BeforeEach(func() {
			client = mock.NewMockClient()
			notifier, err := report.NewQueueNotifier(client)
			Expect(err).NotTo(HaveOccurred())
			cfg.Notifier = notifier
			addReadings("DT001", day1, 10, 20)
		})

		It("should publish every written report", func() {
			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			pushed := client.Pushed()
			Expect(pushed).To(HaveLen(1))

			var msg report.Message
			Expect(json.Unmarshal(pushed[0], &msg)).To(Succeed())
			Expect(msg.ReportID).To(Equal(summary.Reports[0].ID))
			Expect(msg.DeviceID).To(Equal("DT001"))
			Expect(msg.Date).To(Equal("2020-12-01"))
			Expect(msg.AvgValue).To(Equal(15.0))
		})

		It("should keep going when publishing fails", func() {
			client.PushError = errors.New("broker down")
			cfg.Metrics = metrics.NewReportMetrics(prometheus.NewRegistry())

			agg, err := report.NewAggregator(cfg)
			Expect(err).NotTo(HaveOccurred())
			summary, err := agg.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Reports).To(HaveLen(1))
			Expect(testutil.ToFloat64(cfg.Metrics.NotificationErrors)).To(Equal(1.0))
		})

		It("should require a client", func() {
			_, err := report.NewQueueNotifier(nil)
			Expect(err).To(HaveOccurred())
		})
	})
})
