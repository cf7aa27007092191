package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for the source dimension of query metrics
const (
	SourceCache   = "cache"
	SourceBackend = "backend"
)

// PrometheusMetrics holds all Prometheus collectors for the cache service
type PrometheusMetrics struct {
	// Query metrics
	QueriesTotal  prometheus.CounterVec
	QueryDuration prometheus.HistogramVec
	QueryClasses  prometheus.CounterVec
	QueryTopics   prometheus.CounterVec
	ErrorsTotal   prometheus.Counter
	CacheHitRate  prometheus.Gauge

	// Dependency metrics
	BackendCallsTotal  prometheus.Counter
	EmbeddingDuration  prometheus.Histogram
	StoreDuration      prometheus.HistogramVec
	CircuitBreakerOpen prometheus.GaugeVec
}

// NewPrometheusMetrics creates and registers all cache service metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Query metrics
		QueriesTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "semcache_queries_total",
			Help: "Total number of queries processed by answer source",
		}, []string{"source"}),
		QueryDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "semcache_query_duration_seconds",
			Help:    "End-to-end query latency in seconds by answer source",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"source"}),
		QueryClasses: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "semcache_query_classes_total",
			Help: "Total number of queries by freshness class",
		}, []string{"class"}),
		QueryTopics: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "semcache_query_topics_total",
			Help: "Total number of queries by topic partition",
		}, []string{"topic"}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "semcache_errors_total",
			Help: "Total number of failed requests",
		}),
		CacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "semcache_cache_hit_rate",
			Help: "Fraction of queries answered from the cache",
		}),

		// Dependency metrics
		BackendCallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "semcache_backend_calls_total",
			Help: "Total number of LLM backend calls",
		}),
		EmbeddingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "semcache_embedding_duration_seconds",
			Help:    "Duration of embedding generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),
		StoreDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "semcache_store_duration_seconds",
			Help:    "Duration of vector store operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}, []string{"operation"}),
		CircuitBreakerOpen: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "semcache_circuit_breaker_open",
			Help: "Circuit breaker state (1 = open, 0 = closed)",
		}, []string{"service"}),
	}
}

// SetCircuitBreakerState sets the circuit breaker state for a service
func (m *PrometheusMetrics) SetCircuitBreakerState(service string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	m.CircuitBreakerOpen.WithLabelValues(service).Set(value)
}

// ObserveEmbedding records the duration of one embedding call
func (m *PrometheusMetrics) ObserveEmbedding(seconds float64) {
	m.EmbeddingDuration.Observe(seconds)
}

// ObserveStoreOperation records the duration of one vector store operation
func (m *PrometheusMetrics) ObserveStoreOperation(operation string, seconds float64) {
	m.StoreDuration.WithLabelValues(operation).Observe(seconds)
}
