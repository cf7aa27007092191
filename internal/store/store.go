// Package store persists cache entries in Redis and serves approximate
// nearest-neighbor lookups over their embeddings via RediSearch.
// Entries are content-addressed: the key is a stable hash of the query
// text, so re-storing a query overwrites in place. Every write carries
// a TTL and the store never surfaces failures to its caller; a broken
// store degrades the service to a pass-through, not an outage.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/developer-mesh/semcache/internal/classifier"
	"github.com/developer-mesh/semcache/internal/metrics"
	"github.com/developer-mesh/semcache/internal/resilience"
	"github.com/developer-mesh/semcache/pkg/observability"
)

const (
	// DefaultIndexName is the RediSearch index over cache entries
	DefaultIndexName = "cache_index"

	// DefaultKeyPrefix namespaces cache keys and scopes the index
	DefaultKeyPrefix = "cache:"

	// DefaultEvictionPolicy prefers shortest-TTL entries as victims
	// under memory pressure
	DefaultEvictionPolicy = "volatile-ttl"
)

// Entry is one cached query/response pair.
type Entry struct {
	Query     string
	Response  string
	Class     string
	Topic     string
	CreatedAt int64
	Embedding []float32
}

// Hit is a search result within the caller's distance threshold.
type Hit struct {
	Query    string
	Response string
	Class    string
	Topic    string
	Distance float64
}

// Config configures the Redis-backed store.
type Config struct {
	IndexName      string
	KeyPrefix      string
	Dimensions     int
	EvictionPolicy string
}

// RedisStore implements the vector cache over a RediSearch-enabled
// Redis. The client is internally thread-safe; breaker state guards
// every round-trip.
type RedisStore struct {
	client  redis.UniversalClient
	config  Config
	breaker *resilience.CircuitBreaker
	logger  observability.Logger
	metrics *metrics.PrometheusMetrics
}

// NewRedisStore creates a store on client. The prom argument may be nil.
func NewRedisStore(
	client redis.UniversalClient,
	config Config,
	breaker *resilience.CircuitBreaker,
	logger observability.Logger,
	prom *metrics.PrometheusMetrics,
) *RedisStore {
	if config.IndexName == "" {
		config.IndexName = DefaultIndexName
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	if config.EvictionPolicy == "" {
		config.EvictionPolicy = DefaultEvictionPolicy
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &RedisStore{
		client:  client,
		config:  config,
		breaker: breaker,
		logger:  logger.WithPrefix("store"),
		metrics: prom,
	}
}

// Key derives the content-addressed cache key for a query.
func (s *RedisStore) Key(query string) string {
	sum := sha256.Sum256([]byte(query))
	return s.config.KeyPrefix + hex.EncodeToString(sum[:])
}

// Search finds the cached entry nearest to embedding, if one lies
// within threshold. Queries tagged with a specific topic probe that
// partition first and fall back to the global space. Search never
// returns an error: an open breaker, a search failure, an empty result
// set, or an over-threshold neighbor all report a plain miss.
func (s *RedisStore) Search(ctx context.Context, embedding []float32, threshold float64, topic string) *Hit {
	if !s.breaker.IsAvailable() {
		s.logger.Warn("Store circuit breaker is open, skipping cache search", nil)
		return nil
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveStoreOperation("search", time.Since(start).Seconds())
		}
	}()

	if topic != "" && topic != classifier.TopicGeneral {
		if hit := s.searchWithFilter(ctx, embedding, threshold, topic); hit != nil {
			s.logger.Debug("Cache hit in topic partition", map[string]interface{}{
				"topic":    topic,
				"distance": hit.Distance,
			})
			return hit
		}
		// A failed partition probe may have just tripped the breaker;
		// the global probe must not go out against a dependency the
		// breaker has declared down.
		if !s.breaker.IsAvailable() {
			s.logger.Warn("Store circuit breaker opened during search, skipping global fallback", nil)
			return nil
		}
		s.logger.Debug("No match in topic partition, falling back to global search", map[string]interface{}{
			"topic": topic,
		})
	}

	return s.searchWithFilter(ctx, embedding, threshold, "")
}

// searchWithFilter runs one KNN-1 probe, filtered to a topic partition
// when topic is non-empty.
func (s *RedisStore) searchWithFilter(ctx context.Context, embedding []float32, threshold float64, topic string) *Hit {
	query := knnQuery(topic)

	res, err := s.client.FTSearchWithArgs(ctx, s.config.IndexName, query, &redis.FTSearchOptions{
		Return: []redis.FTSearchReturn{
			{FieldName: "query"},
			{FieldName: "response"},
			{FieldName: "class"},
			{FieldName: "topic"},
			{FieldName: "distance"},
		},
		SortBy: []redis.FTSearchSortBy{
			{FieldName: "distance", Asc: true},
		},
		LimitOffset:    0,
		Limit:          1,
		Params:         map[string]interface{}{"vec": encodeVector(embedding)},
		DialectVersion: 2,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			s.breaker.RecordFailure()
			s.logger.Error("Vector search failed", map[string]interface{}{
				"error": err.Error(),
				"topic": topic,
			})
		} else {
			s.breaker.Release()
		}
		return nil
	}
	s.breaker.RecordSuccess()

	if len(res.Docs) == 0 {
		return nil
	}

	hit, err := parseHit(res.Docs[0])
	if err != nil {
		s.logger.Error("Malformed search document", map[string]interface{}{
			"error": err.Error(),
			"key":   res.Docs[0].ID,
		})
		return nil
	}
	if hit.Distance > threshold {
		return nil
	}
	return hit
}

// Store writes entry under its content-addressed key with the given
// TTL, overwriting any previous record and extending the expiration.
// Failures are logged and counted against the breaker, never raised:
// the user's response does not depend on the cache write.
func (s *RedisStore) Store(ctx context.Context, entry Entry, ttl time.Duration) {
	if !s.breaker.IsAvailable() {
		s.logger.Warn("Store circuit breaker is open, skipping cache store", nil)
		return
	}

	start := time.Now()
	key := s.Key(entry.Query)

	createdAt := entry.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"query":      entry.Query,
		"response":   entry.Response,
		"class":      entry.Class,
		"topic":      entry.Topic,
		"created_at": createdAt,
		"embedding":  encodeVector(entry.Embedding),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		if ctx.Err() == nil {
			s.breaker.RecordFailure()
			s.logger.Error("Cache store failed", map[string]interface{}{
				"error": err.Error(),
				"key":   key,
			})
		} else {
			s.breaker.Release()
		}
		return
	}
	s.breaker.RecordSuccess()

	if s.metrics != nil {
		s.metrics.ObserveStoreOperation("store", time.Since(start).Seconds())
	}
	s.logger.Debug("Cached query", map[string]interface{}{
		"key":         key,
		"topic":       entry.Topic,
		"ttl_seconds": ttl.Seconds(),
	})
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// knnQuery builds the KNN-1 query string, optionally prefixed with a
// topic tag filter.
func knnQuery(topic string) string {
	if topic != "" {
		return fmt.Sprintf("@topic:{%s}=>[KNN 1 @embedding $vec AS distance]", topic)
	}
	return "*=>[KNN 1 @embedding $vec AS distance]"
}

// parseHit converts a search document into a Hit. Topic tags outside
// the closed set normalize to general.
func parseHit(doc redis.Document) (*Hit, error) {
	rawDistance, ok := doc.Fields["distance"]
	if !ok {
		return nil, fmt.Errorf("document %s missing distance field", doc.ID)
	}
	distance, err := strconv.ParseFloat(rawDistance, 64)
	if err != nil {
		return nil, fmt.Errorf("document %s has invalid distance %q: %w", doc.ID, rawDistance, err)
	}

	return &Hit{
		Query:    doc.Fields["query"],
		Response: doc.Fields["response"],
		Class:    doc.Fields["class"],
		Topic:    classifier.NormalizeTopic(doc.Fields["topic"]),
		Distance: distance,
	}, nil
}

// encodeVector serializes a vector as packed little-endian float32,
// the byte layout RediSearch expects for FLOAT32 vector fields.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
