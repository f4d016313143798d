package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors for pipeline runs and the read-only API.
// Collectors are registered on the registerer handed to NewMetrics so tests
// can use a private registry.
type Metrics struct {
	Runs               *prometheus.CounterVec
	TransactionsLoaded prometheus.Gauge
	ModuleDuration     *prometheus.HistogramVec
	ModuleFailures     *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retailbi_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),

		TransactionsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "retailbi_transactions_loaded",
			Help: "Transactions in the most recent pipeline run",
		}),

		ModuleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retailbi_module_duration_seconds",
			Help:    "Duration of each analytics module",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),

		ModuleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retailbi_module_failures_total",
			Help: "Analytics module failures by error code",
		}, []string{"module", "code"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retailbi_http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retailbi_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveModule records the outcome of one module. code is empty on success.
func (m *Metrics) ObserveModule(module string, started time.Time, code string) {
	if m == nil {
		return
	}
	m.ModuleDuration.WithLabelValues(module).Observe(time.Since(started).Seconds())
	if code != "" {
		m.ModuleFailures.WithLabelValues(module, code).Inc()
	}
}
