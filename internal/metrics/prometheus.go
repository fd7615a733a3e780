package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the analyze relay
type Metrics struct {
	registry *prometheus.Registry

	// Relay outcome metrics
	RelayRequests *prometheus.CounterVec
	RelayFailures *prometheus.CounterVec
	UploadSize    prometheus.Histogram
	StagedFiles   prometheus.Gauge
	CleanupErrors prometheus.Counter

	// Analyzer metrics
	AnalyzerRequests  prometheus.Counter
	AnalyzerSuccesses prometheus.Counter
	AnalyzerFailures  prometheus.Counter
	AnalyzerDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them, together with the Go
// runtime and process collectors, in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Relay outcome metrics
		RelayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_analyze_requests_total",
			Help: "Total number of /analyze requests by outcome",
		}, []string{"outcome"}),
		RelayFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_analyze_failures_total",
			Help: "Total number of failed /analyze requests by failure kind",
		}, []string{"kind"}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_upload_size_bytes",
			Help:    "Size of staged uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		StagedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_staged_files",
			Help: "Current number of staged transient files",
		}),
		CleanupErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_cleanup_errors_total",
			Help: "Total number of failed staged file removals",
		}),

		// Analyzer metrics
		AnalyzerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_analyzer_requests_total",
			Help: "Total number of requests sent to the analysis service",
		}),
		AnalyzerSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_analyzer_successes_total",
			Help: "Total number of successful analysis calls",
		}),
		AnalyzerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_analyzer_failures_total",
			Help: "Total number of failed analysis calls",
		}),
		AnalyzerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_analyzer_duration_seconds",
			Help:    "Duration of analysis calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRelayOutcome counts a finished /analyze request
func (m *Metrics) RecordRelayOutcome(outcome string) {
	m.RelayRequests.WithLabelValues(outcome).Inc()
}

// RecordRelayFailure counts a failed /analyze request by kind
func (m *Metrics) RecordRelayFailure(kind string) {
	m.RelayFailures.WithLabelValues(kind).Inc()
}

// RecordStaged records a newly staged upload
func (m *Metrics) RecordStaged(sizeBytes int64) {
	m.UploadSize.Observe(float64(sizeBytes))
	m.StagedFiles.Inc()
}

// RecordUnstaged records removal of a staged upload
func (m *Metrics) RecordUnstaged(err error) {
	m.StagedFiles.Dec()
	if err != nil {
		m.CleanupErrors.Inc()
	}
}

// RecordAnalyzerRequest increments analysis requests counter
func (m *Metrics) RecordAnalyzerRequest() {
	m.AnalyzerRequests.Inc()
}

// RecordAnalyzerSuccess records a successful analysis call
func (m *Metrics) RecordAnalyzerSuccess(durationSeconds float64) {
	m.AnalyzerSuccesses.Inc()
	m.AnalyzerDuration.Observe(durationSeconds)
}

// RecordAnalyzerFailure records a failed analysis call
func (m *Metrics) RecordAnalyzerFailure(durationSeconds float64) {
	m.AnalyzerFailures.Inc()
	m.AnalyzerDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
