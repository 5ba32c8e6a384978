package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-db/pkg/metrics"
)

var _ = Describe("Metrics", func() {
	var reg *prometheus.Registry

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
	})

	It("should register store metrics on the given registry", func() {
		m := metrics.NewStoreMetrics(reg)
		m.OperationsTotal.WithLabelValues("find_one", "users", "success").Inc()

		Expect(testutil.CollectAndCount(reg, "weatherdb_store_operations_total")).To(Equal(1))
	})

	It("should register model metrics", func() {
		m := metrics.NewModelMetrics(reg)
		m.Outcomes.WithLabelValues("user", "insert", "conflict").Inc()
		m.Denials.WithLabelValues("device", "default").Add(2)

		Expect(testutil.ToFloat64(m.Denials.WithLabelValues("device", "default"))).To(Equal(2.0))
		Expect(testutil.CollectAndCount(reg, "weatherdb_model_outcomes_total")).To(Equal(1))
	})

	It("should register report and mq metrics side by side", func() {
		r := metrics.NewReportMetrics(reg)
		q := metrics.NewMQMetrics(reg)
		r.RunsTotal.WithLabelValues("success").Inc()
		q.ReconnectAttempts.Inc()

		Expect(testutil.CollectAndCount(reg, "weatherdb_report_runs_total")).To(Equal(1))
		Expect(testutil.ToFloat64(q.ReconnectAttempts)).To(Equal(1.0))
	})

	It("should register producer and consumer metrics side by side", func() {
		p := metrics.NewProducerMetrics(reg)
		c := metrics.NewIngestMetrics(reg)
		p.GenerationFailures.WithLabelValues("push_error").Inc()
		c.MessagesTotal.WithLabelValues("weather-readings", "stored").Add(3)

		Expect(testutil.CollectAndCount(reg, "weatherdb_producer_generation_failures_total")).To(Equal(1))
		Expect(testutil.ToFloat64(c.MessagesTotal.WithLabelValues("weather-readings", "stored"))).To(Equal(3.0))
	})

	It("should refuse to register the same metrics twice", func() {
		metrics.NewReportMetrics(reg)
		Expect(func() { metrics.NewReportMetrics(reg) }).To(Panic())
	})

	It("should fall back to the global registry and expose it over HTTP", func() {
		m := metrics.NewStoreMetrics(nil)
		m.OperationsTotal.WithLabelValues("aggregate", "weather_data", "success").Inc()

		server := httptest.NewServer(metrics.Handler())
		defer server.Close()

		resp, err := http.Get(server.URL)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("weatherdb_store_operations_total"))
		Expect(string(body)).To(ContainSubstring("go_goroutines"))
	})
})
