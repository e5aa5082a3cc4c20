package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

// Outcome labels for execution counters.
const (
	OutcomeSucceeded     = "succeeded"
	OutcomeFailed        = "failed"
	OutcomeTimedOut      = "timed_out"
	OutcomeCompileFailed = "compile_failed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	BatchesTotal      prometheus.Counter
	BatchSize         prometheus.Histogram
	ValidationsTotal  *prometheus.CounterVec

	// Cache metrics, refreshed from worker snapshots
	CacheEntries      prometheus.Gauge
	CacheHits         prometheus.Gauge
	CacheMisses       prometheus.Gauge
	CacheEvictions    prometheus.Gauge
	OmittedExtensions prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_executions_total",
				Help: "Total number of script executions by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_execution_duration_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
			},
		),
		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_batches_total",
				Help: "Total number of batch requests",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_batch_size",
				Help:    "Number of scripts per batch request",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_validations_total",
				Help: "Total number of validation requests by result",
			},
			[]string{"result"},
		),

		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_cache_entries",
				Help: "Compiled programs currently cached across all workers",
			},
		),
		CacheHits: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_cache_hits",
				Help: "Cumulative cache hits across all workers",
			},
		),
		CacheMisses: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_cache_misses",
				Help: "Cumulative cache misses across all workers",
			},
		),
		CacheEvictions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_cache_evictions",
				Help: "Cumulative cache evictions across all workers",
			},
		),
		OmittedExtensions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_omitted_extensions",
				Help: "Author extensions dropped at surface build across all workers",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExecution records one finished script execution.
func (m *Metrics) RecordExecution(res *sandbox.ExecutionResult) {
	m.ExecutionsTotal.WithLabelValues(outcomeLabel(res)).Inc()
	m.ExecutionDuration.Observe(res.ExecutionTimeMs / 1000)
}

// RecordBatch records one batch request of the given size.
func (m *Metrics) RecordBatch(size int) {
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordValidation records a validation request.
func (m *Metrics) RecordValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.ValidationsTotal.WithLabelValues(result).Inc()
}

// UpdateFromSnapshot refreshes cache and extension gauges from a merged
// worker snapshot.
func (m *Metrics) UpdateFromSnapshot(snap sandbox.MetricsSnapshot) {
	m.CacheEntries.Set(float64(snap.Cache.Entries))
	m.CacheHits.Set(float64(snap.Cache.Hits))
	m.CacheMisses.Set(float64(snap.Cache.Misses))
	m.CacheEvictions.Set(float64(snap.Cache.Evictions))
	m.OmittedExtensions.Set(float64(snap.OmittedExtensions))
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

func outcomeLabel(res *sandbox.ExecutionResult) string {
	switch res.ErrorKind {
	case "":
		return OutcomeSucceeded
	case sandbox.ErrKindTimeout:
		return OutcomeTimedOut
	case sandbox.ErrKindCompile:
		return OutcomeCompileFailed
	default:
		return OutcomeFailed
	}
}
