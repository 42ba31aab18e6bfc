// Package metrics provides Prometheus metrics for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector for the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	// Matching pipeline
	matchRequests *prometheus.CounterVec
	matchLatency  prometheus.Histogram
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	signalLatency *prometheus.HistogramVec

	// Index
	indexSize         prometheus.Gauge
	indexQueryLatency prometheus.Histogram
	indexRetries      prometheus.Counter

	// Re-embedding pipeline
	reembedProcessed  prometheus.Counter
	reembedErrors     prometheus.Counter
	reembedDropped    prometheus.Counter
	reembedLatency    prometheus.Histogram
	reembedQueueSize  prometheus.Gauge
	reembedWorkers    prometheus.Gauge
	synonymConflicts  prometheus.Counter
	skillCount        prometheus.Gauge
	userCount         prometheus.Gauge
	opportunityCount  prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

var defaultManager *Manager

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	defaultManager = NewManager()
}

// NewManager creates a Manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "matchd",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.matchRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "match_requests_total",
		Help:      "Match requests by outcome.",
	}, []string{"outcome"})
	m.matchLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "match_latency_ms",
		Help:      "End-to-end match pipeline latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})
	m.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "result_cache_hits_total",
		Help:      "Ranked-result cache hits.",
	})
	m.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "result_cache_misses_total",
		Help:      "Ranked-result cache misses (including version invalidations).",
	})
	m.signalLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "signal_latency_ms",
		Help:      "Per-signal extraction latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"signal"})

	m.indexSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "index_vectors",
		Help:      "Number of vectors currently indexed.",
	})
	m.indexQueryLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "index_query_latency_ms",
		Help:      "Nearest-neighbor query latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	m.indexRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "index_retries_total",
		Help:      "Retries against a transiently unavailable index.",
	})

	m.reembedProcessed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "reembed_processed_total",
		Help:      "Successfully re-embedded entities.",
	})
	m.reembedErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "reembed_errors_total",
		Help:      "Failed re-embed jobs.",
	})
	m.reembedDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "reembed_dropped_total",
		Help:      "Re-embed jobs dropped due to queue backpressure.",
	})
	m.reembedLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "reembed_latency_ms",
		Help:      "Re-embed job latency in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
	m.reembedQueueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "reembed_queue_size",
		Help:      "Jobs buffered in the re-embed queue.",
	})
	m.reembedWorkers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "reembed_workers",
		Help:      "Active re-embed workers.",
	})

	m.synonymConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "kb_synonym_conflicts_total",
		Help:      "Rejected synonym writes that conflicted with an existing mapping.",
	})
	m.skillCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "kb_skills",
		Help:      "Canonical skills in the vocabulary.",
	})
	m.userCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "users",
		Help:      "User profiles known to the engine.",
	})
	m.opportunityCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "opportunities",
		Help:      "Opportunities known to the engine.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"endpoint", "method", "status"})
}

// Package-level helpers recording against the default manager.

// RecordMatchRequest counts one match request by outcome
// ("ok", "rejected", "error").
func RecordMatchRequest(outcome string) {
	defaultManager.matchRequests.WithLabelValues(outcome).Inc()
}

// RecordMatchLatency records end-to-end pipeline latency.
func RecordMatchLatency(ms float64) {
	defaultManager.matchLatency.Observe(ms)
}

// RecordCacheHit counts a ranked-result cache hit.
func RecordCacheHit() {
	defaultManager.cacheHits.Inc()
}

// RecordCacheMiss counts a ranked-result cache miss.
func RecordCacheMiss() {
	defaultManager.cacheMisses.Inc()
}

// RecordSignalLatency records one extractor's latency.
func RecordSignalLatency(signal string, ms float64) {
	defaultManager.signalLatency.WithLabelValues(signal).Observe(ms)
}

// UpdateIndexSize sets the indexed vector count.
func UpdateIndexSize(n int) {
	defaultManager.indexSize.Set(float64(n))
}

// RecordIndexQueryLatency records one nearest-neighbor query.
func RecordIndexQueryLatency(ms float64) {
	defaultManager.indexQueryLatency.Observe(ms)
}

// RecordIndexRetry counts a retry against an unavailable index.
func RecordIndexRetry() {
	defaultManager.indexRetries.Inc()
}

// RecordReembedProcessed counts a completed re-embed job.
func RecordReembedProcessed() {
	defaultManager.reembedProcessed.Inc()
}

// RecordReembedError counts a failed re-embed job.
func RecordReembedError() {
	defaultManager.reembedErrors.Inc()
}

// RecordReembedDropped counts a job dropped on backpressure.
func RecordReembedDropped() {
	defaultManager.reembedDropped.Inc()
}

// RecordReembedLatency records one re-embed job's latency.
func RecordReembedLatency(ms float64) {
	defaultManager.reembedLatency.Observe(ms)
}

// UpdateReembedQueueSize sets the buffered job count.
func UpdateReembedQueueSize(n int) {
	defaultManager.reembedQueueSize.Set(float64(n))
}

// UpdateWorkerCount sets the active worker count.
func UpdateWorkerCount(n int) {
	defaultManager.reembedWorkers.Set(float64(n))
}

// RecordSynonymConflict counts a rejected synonym write.
func RecordSynonymConflict() {
	defaultManager.synonymConflicts.Inc()
}

// UpdateSkillCount sets the vocabulary size.
func UpdateSkillCount(n int) {
	defaultManager.skillCount.Set(float64(n))
}

// UpdateUserCount sets the known-user gauge.
func UpdateUserCount(n int) {
	defaultManager.userCount.Set(float64(n))
}

// UpdateOpportunityCount sets the known-opportunity gauge.
func UpdateOpportunityCount(n int) {
	defaultManager.opportunityCount.Set(float64(n))
}

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	defaultManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records one HTTP request's duration.
func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	defaultManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// GetRegistry exposes the default registry for the /healthz handler.
func GetRegistry() *prometheus.Registry {
	return defaultManager.registry
}
