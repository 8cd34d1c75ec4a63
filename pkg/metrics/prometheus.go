package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	callsTotal     *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	throttleWait   *prometheus.HistogramVec
	cacheOps       *prometheus.CounterVec
	pollInterval   *prometheus.GaugeVec
	resourceDenied *prometheus.CounterVec
	score          *prometheus.GaugeVec
	confidence     *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		callsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_upstream_calls_total",
				Help: "Logical upstream calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_upstream_retries_total",
				Help: "Retried upstream attempts by endpoint and error kind",
			},
			[]string{"endpoint", "kind"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_breaker_state",
				Help: "Circuit breaker state per endpoint (0 closed, 1 open, 2 half-open)",
			},
			[]string{"endpoint"},
		),
		throttleWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confluence_throttle_wait_seconds",
				Help:    "Time spent waiting for a throttle slot",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		),
		cacheOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_cache_operations_total",
				Help: "Cache operations by tier, op and result",
			},
			[]string{"tier", "op", "result"},
		),
		pollInterval: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_poll_interval_seconds",
				Help: "Current polling interval per symbol and data kind",
			},
			[]string{"symbol", "kind"},
		),
		resourceDenied: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_resource_denied_total",
				Help: "Denied resource acquisitions by component",
			},
			[]string{"component"},
		),
		score: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_score",
				Help: "Latest fused confluence score per symbol",
			},
			[]string{"symbol"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_confidence",
				Help: "Latest fused confidence per symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confluence_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCall records the final outcome of one logical upstream call.
func (r *Recorder) RecordCall(endpoint, outcome string) {
	r.callsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) RecordRetry(endpoint, kind string) {
	r.retriesTotal.WithLabelValues(endpoint, kind).Inc()
}

func (r *Recorder) RecordBreakerState(endpoint string, state int) {
	r.breakerState.WithLabelValues(endpoint).Set(float64(state))
}

func (r *Recorder) RecordThrottleWait(endpoint string, seconds float64) {
	r.throttleWait.WithLabelValues(endpoint).Observe(seconds)
}

func (r *Recorder) RecordCache(tier, op, result string) {
	r.cacheOps.WithLabelValues(tier, op, result).Inc()
}

func (r *Recorder) RecordInterval(symbol, kind string, seconds float64) {
	r.pollInterval.WithLabelValues(symbol, kind).Set(seconds)
}

func (r *Recorder) RecordResourceDenied(component string) {
	r.resourceDenied.WithLabelValues(component).Inc()
}

// RecordConfluence records the latest fused result for a symbol.
func (r *Recorder) RecordConfluence(symbol string, score, confidence float64) {
	r.score.WithLabelValues(symbol).Set(score)
	r.confidence.WithLabelValues(symbol).Set(confidence)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used when metrics are disabled and in tests.
type Nop struct{}

func (Nop) RecordCall(string, string)                 {}
func (Nop) RecordRetry(string, string)                {}
func (Nop) RecordBreakerState(string, int)            {}
func (Nop) RecordThrottleWait(string, float64)        {}
func (Nop) RecordCache(string, string, string)        {}
func (Nop) RecordInterval(string, string, float64)    {}
func (Nop) RecordResourceDenied(string)               {}
func (Nop) RecordConfluence(string, float64, float64) {}
func (Nop) RecordError(string)                        {}
func (Nop) RecordLatency(string, float64)             {}
