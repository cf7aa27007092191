// Package metrics tracks cache performance counters. The Registry is
// the in-process source of truth served by the stats endpoint; the
// PrometheusMetrics collectors mirror the same observations for
// scraping.
package metrics

import (
	"math"
	"sync"
	"time"
)

const (
	classTimeSensitive = "time_sensitive"
	classEvergreen     = "evergreen"
)

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	TotalQueries        int64            `json:"total_queries"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	BackendCalls        int64            `json:"backend_calls"`
	Errors              int64            `json:"errors"`
	HitRate             float64          `json:"hit_rate"`
	AvgTotalLatencyMs   float64          `json:"avg_total_latency_ms"`
	AvgCacheLatencyMs   float64          `json:"avg_cache_latency_ms"`
	AvgBackendLatencyMs float64          `json:"avg_backend_latency_ms"`
	QueryClasses        map[string]int64 `json:"query_classes"`
	Topics              map[string]int64 `json:"topics"`
}

// Registry is a thread-safe collector for cache performance counters.
// All operations are O(1) and guarded by a single mutex.
type Registry struct {
	prom *PrometheusMetrics

	mu               sync.Mutex
	totalQueries     int64
	cacheHits        int64
	cacheMisses      int64
	backendCalls     int64
	errors           int64
	totalLatencyMs   float64
	cacheLatencyMs   float64
	backendLatencyMs float64
	classCounts      map[string]int64
	topicCounts      map[string]int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return NewRegistryWithPrometheus(nil)
}

// NewRegistryWithPrometheus creates a registry that additionally
// forwards every observation to the given Prometheus collectors.
func NewRegistryWithPrometheus(prom *PrometheusMetrics) *Registry {
	return &Registry{
		prom:        prom,
		classCounts: newClassCounts(),
		topicCounts: make(map[string]int64),
	}
}

func newClassCounts() map[string]int64 {
	return map[string]int64{
		classTimeSensitive: 0,
		classEvergreen:     0,
	}
}

// RecordCacheHit records a request answered from the cache.
func (r *Registry) RecordCacheHit(latency time.Duration) {
	ms := durationMs(latency)

	r.mu.Lock()
	r.totalQueries++
	r.cacheHits++
	r.totalLatencyMs += ms
	r.cacheLatencyMs += ms
	hitRate := float64(r.cacheHits) / float64(r.totalQueries)
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.QueriesTotal.WithLabelValues(SourceCache).Inc()
		r.prom.QueryDuration.WithLabelValues(SourceCache).Observe(latency.Seconds())
		r.prom.CacheHitRate.Set(hitRate)
	}
}

// RecordCacheMiss records a request answered by the backend. Every miss
// implies one backend call.
func (r *Registry) RecordCacheMiss(latency time.Duration) {
	ms := durationMs(latency)

	r.mu.Lock()
	r.totalQueries++
	r.cacheMisses++
	r.backendCalls++
	r.totalLatencyMs += ms
	r.backendLatencyMs += ms
	hitRate := float64(r.cacheHits) / float64(r.totalQueries)
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.QueriesTotal.WithLabelValues(SourceBackend).Inc()
		r.prom.QueryDuration.WithLabelValues(SourceBackend).Observe(latency.Seconds())
		r.prom.BackendCallsTotal.Inc()
		r.prom.CacheHitRate.Set(hitRate)
	}
}

// RecordQueryClass records a query's freshness classification. Anything
// other than time_sensitive counts as evergreen.
func (r *Registry) RecordQueryClass(class string) {
	if class != classTimeSensitive {
		class = classEvergreen
	}

	r.mu.Lock()
	r.classCounts[class]++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.QueryClasses.WithLabelValues(class).Inc()
	}
}

// RecordTopic records the cache partition a query landed in.
func (r *Registry) RecordTopic(topic string) {
	r.mu.Lock()
	r.topicCounts[topic]++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.QueryTopics.WithLabelValues(topic).Inc()
	}
}

// RecordError records a request that failed.
func (r *Registry) RecordError() {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.ErrorsTotal.Inc()
	}
}

// Snapshot computes the current stats. Rates and averages are zero-safe.
func (r *Registry) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	hitRate := 0.0
	avgTotal := 0.0
	if r.totalQueries > 0 {
		hitRate = float64(r.cacheHits) / float64(r.totalQueries)
		avgTotal = r.totalLatencyMs / float64(r.totalQueries)
	}
	avgCache := 0.0
	if r.cacheHits > 0 {
		avgCache = r.cacheLatencyMs / float64(r.cacheHits)
	}
	avgBackend := 0.0
	if r.backendCalls > 0 {
		avgBackend = r.backendLatencyMs / float64(r.backendCalls)
	}

	classes := make(map[string]int64, len(r.classCounts))
	for class, n := range r.classCounts {
		classes[class] = n
	}
	topics := make(map[string]int64, len(r.topicCounts))
	for topic, n := range r.topicCounts {
		topics[topic] = n
	}

	return Stats{
		TotalQueries:        r.totalQueries,
		CacheHits:           r.cacheHits,
		CacheMisses:         r.cacheMisses,
		BackendCalls:        r.backendCalls,
		Errors:              r.errors,
		HitRate:             roundTo(hitRate, 4),
		AvgTotalLatencyMs:   roundTo(avgTotal, 2),
		AvgCacheLatencyMs:   roundTo(avgCache, 2),
		AvgBackendLatencyMs: roundTo(avgBackend, 2),
		QueryClasses:        classes,
		Topics:              topics,
	}
}

// Reset zeroes every counter.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalQueries = 0
	r.cacheHits = 0
	r.cacheMisses = 0
	r.backendCalls = 0
	r.errors = 0
	r.totalLatencyMs = 0
	r.cacheLatencyMs = 0
	r.backendLatencyMs = 0
	r.classCounts = newClassCounts()
	r.topicCounts = make(map[string]int64)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
