package charts

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/go-chart-client/resilience"
)

// Metrics bundles Prometheus collectors for the chart client.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec
	QualityScore     prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_client_requests_total",
			Help: "Chart fetches by outcome (cache_hit, fetched, stale, failed, not_configured).",
		},
		[]string{"outcome"},
	)
	upstreamDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chart_client_upstream_duration_seconds",
			Help:    "Latency of individual upstream chart API attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chart_client_retries_total",
			Help: "Total number of upstream retries scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_client_errors_total",
			Help: "Failed upstream fetches by error type.",
		},
		[]string{"error_type"},
	)
	cacheErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_client_cache_errors_total",
			Help: "Cache store failures by operation.",
		},
		[]string{"op"},
	)
	quality := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chart_client_quality_score",
			Help:    "Quality score of freshly fetched charts.",
			Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 1},
		},
	)

	registry.MustRegister(requests, upstreamDuration, retries, errorsTotal, cacheErrors, quality)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		UpstreamDuration: upstreamDuration,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		CacheErrorsTotal: cacheErrors,
		QualityScore:     quality,
	}
}

// RegisterBreaker exposes b's state as chart_client_breaker_state
// (0 closed, 1 half-open, 2 open).
func (m *Metrics) RegisterBreaker(b *resilience.Breaker) error {
	if m == nil || b == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "chart_client_breaker_state",
			Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			ConstLabels: prometheus.Labels{"breaker": b.Name()},
		},
		func() float64 { return float64(b.State()) },
	)
	if err := m.Registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// IncRequest increments the requests counter for an outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an upstream attempt duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheError increments the cache error counter for an operation.
func (m *Metrics) IncCacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveQuality records the quality score of a fresh fetch.
func (m *Metrics) ObserveQuality(score float64) {
	if m == nil {
		return
	}
	m.QualityScore.Observe(score)
}
