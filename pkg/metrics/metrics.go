// Package metrics provides the Prometheus collectors for the document store,
// the entity models, the report job, the message queue and the reading
// producer and consumer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by weather-db.
const Namespace = "weatherdb"

// Registry is the global Prometheus registry for all metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MustRegister registers collectors with the global registry.
// Panics if registration fails.
func MustRegister(collectors ...prometheus.Collector) {
	Registry.MustRegister(collectors...)
}

// register uses reg when given, the global registry otherwise.
func register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		MustRegister(cs...)
		return
	}
	reg.MustRegister(cs...)
}
