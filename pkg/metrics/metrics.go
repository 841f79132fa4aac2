// Package metrics holds the Prometheus collectors of the import and
// categorization pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finanalyzer"

// Metrics groups every collector the services update.
type Metrics struct {
	RuleCacheRebuilds prometheus.Counter
	RuleCacheSize     prometheus.Gauge
	ImportBatches     *prometheus.CounterVec
	ImportRows        *prometheus.CounterVec
	ImportDuration    prometheus.Histogram
	Categorized       *prometheus.CounterVec
	FallbackRequests  *prometheus.CounterVec
	FallbackLatency   prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RuleCacheRebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "cache_rebuilds_total",
			Help:      "Number of rule cache rebuilds.",
		}),
		RuleCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "cache_size",
			Help:      "Active rules in the current snapshot.",
		}),
		ImportBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Import batches by detected format and final status.",
		}, []string{"format", "status"}),
		ImportRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Parsed rows by outcome.",
		}, []string{"outcome"}),
		ImportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall time of one import batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Categorized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "categorization",
			Name:      "transactions_total",
			Help:      "Categorization outcomes by method.",
		}, []string{"method"}),
		FallbackRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "requests_total",
			Help:      "Fallback classifier calls by provider and result.",
		}, []string{"provider", "result"}),
		FallbackLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "latency_seconds",
			Help:      "Latency of fallback classifier calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RuleCacheRebuilt(size int) {
	if m == nil {
		return
	}
	m.RuleCacheRebuilds.Inc()
	m.RuleCacheSize.Set(float64(size))
}

func (m *Metrics) BatchFinished(format, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	m.ImportBatches.WithLabelValues(format, status).Inc()
	m.ImportDuration.Observe(elapsed.Seconds())
}

// RowsCounted adds n rows with outcome (imported, duplicate, errored).
func (m *Metrics) RowsCounted(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ImportRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) CategorizedBy(method string) {
	if m == nil {
		return
	}
	m.Categorized.WithLabelValues(method).Inc()
}

func (m *Metrics) FallbackCalled(provider, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FallbackRequests.WithLabelValues(provider, result).Inc()
	m.FallbackLatency.Observe(elapsed.Seconds())
}
