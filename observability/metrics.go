package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks engine operation activity and oracle quote health.
type LendingMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	quoteAge   *prometheus.GaugeVec
	openLoans  prometheus.Gauge
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry for the lending
// engine and its RPC surface.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xlend",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total lending engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xlend",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Total lending engine errors segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "xlend",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for lending engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			quoteAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "xlend",
				Subsystem: "oracle",
				Name:      "quote_age_seconds",
				Help:      "Age of the most recently served quote per price feed.",
			}, []string{"feed"}),
			openLoans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "xlend",
				Subsystem: "engine",
				Name:      "open_loans",
				Help:      "Number of loans currently open across all tiers.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.errors,
			lendingRegistry.latency,
			lendingRegistry.quoteAge,
			lendingRegistry.openLoans,
		)
	})
	return lendingRegistry
}

// Observe records a completed engine operation with its duration and
// outcome. reason should be a short stable token such as the sentinel error
// name, or empty on success.
func (m *LendingMetrics) Observe(operation string, duration time.Duration, err error, reason string) {
	if m == nil {
		return
	}
	op := normalizeLabel(operation)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, normalizeLabel(reason)).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordQuoteAge publishes the age of the latest quote for a feed.
func (m *LendingMetrics) RecordQuoteAge(feed string, age time.Duration) {
	if m == nil {
		return
	}
	m.quoteAge.WithLabelValues(normalizeLabel(feed)).Set(age.Seconds())
}

// LoanOpened bumps the open-loan gauge after a successful origination.
func (m *LendingMetrics) LoanOpened() {
	if m == nil {
		return
	}
	m.openLoans.Inc()
}

// LoanClosed drops the open-loan gauge after a loan record is removed,
// whether by close-out or liquidation settlement.
func (m *LendingMetrics) LoanClosed() {
	if m == nil {
		return
	}
	m.openLoans.Dec()
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
