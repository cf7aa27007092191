// Package service orchestrates the query pipeline: classify the query,
// embed it, probe the vector cache, and fall through to the generative
// backend on a miss. Classification precedes the search because it
// picks the distance threshold; embedding precedes it because the
// search is keyed on the vector. The store write comes last and its
// failure never fails the request.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/developer-mesh/semcache/internal/classifier"
	"github.com/developer-mesh/semcache/internal/metrics"
	"github.com/developer-mesh/semcache/internal/store"
	"github.com/developer-mesh/semcache/pkg/observability"
)

// Answer sources reported in response metadata
const (
	SourceCache   = "cache"
	SourceBackend = "backend"
)

// Embedder turns query text into a unit vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector cache consumed by the pipeline. Both operations
// are best-effort: Search reports a miss instead of failing and Store
// swallows write errors.
type Store interface {
	Search(ctx context.Context, embedding []float32, threshold float64, topic string) *store.Hit
	Store(ctx context.Context, entry store.Entry, ttl time.Duration)
	Key(query string) string
}

// Backend generates an answer for a query that missed the cache.
type Backend interface {
	Generate(ctx context.Context, query string) (string, error)
}

// Metadata describes where a response came from. Confidence is present
// only for cache hits.
type Metadata struct {
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
	Topic      string   `json:"topic,omitempty"`
}

// Result is the outcome of one processed query.
type Result struct {
	Response string   `json:"response"`
	Metadata Metadata `json:"metadata"`
}

// Config configures pipeline behavior.
type Config struct {
	// CoalesceRequests collapses concurrent identical cold-cache
	// queries into a single backend call, keyed by the store's
	// content-addressed key.
	CoalesceRequests bool
}

// Service is the pipeline orchestrator. All collaborators are injected
// at construction; Service holds no policy of its own.
type Service struct {
	embedder Embedder
	store    Store
	backend  Backend
	registry *metrics.Registry
	logger   observability.Logger
	config   Config

	flight singleflight.Group
}

// New creates a pipeline over the given collaborators.
func New(
	embedder Embedder,
	cacheStore Store,
	backend Backend,
	registry *metrics.Registry,
	config Config,
	logger observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	return &Service{
		embedder: embedder,
		store:    cacheStore,
		backend:  backend,
		registry: registry,
		logger:   logger.WithPrefix("pipeline"),
		config:   config,
	}
}

// Process runs one query through the pipeline. With forceRefresh set
// the cache search is skipped and the entry is rewritten from a fresh
// backend answer.
func (s *Service) Process(ctx context.Context, query string, forceRefresh bool) (Result, error) {
	start := time.Now()

	classification := classifier.Classify(query)
	s.registry.RecordQueryClass(string(classification.Class))
	s.registry.RecordTopic(classification.Topic)

	s.logger.Debug("Query classified", map[string]interface{}{
		"class":       classification.Class,
		"topic":       classification.Topic,
		"threshold":   classification.Threshold,
		"ttl_seconds": classification.TTL.Seconds(),
	})

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.registry.RecordError()
		return Result{}, fmt.Errorf("failed to embed query: %w", err)
	}

	if !forceRefresh {
		if hit := s.store.Search(ctx, embedding, classification.Threshold, classification.Topic); hit != nil {
			s.registry.RecordCacheHit(time.Since(start))

			confidence := roundTo(1-hit.Distance, 4)
			s.logger.Info("Cache hit", map[string]interface{}{
				"distance":   hit.Distance,
				"confidence": confidence,
				"topic":      hit.Topic,
			})
			return Result{
				Response: hit.Response,
				Metadata: Metadata{
					Source:     SourceCache,
					Confidence: &confidence,
					Topic:      hit.Topic,
				},
			}, nil
		}
	}

	answer, err := s.generateAndStore(ctx, query, embedding, classification)
	if err != nil {
		s.registry.RecordError()
		return Result{}, err
	}

	s.registry.RecordCacheMiss(time.Since(start))
	return Result{
		Response: answer,
		Metadata: Metadata{
			Source: SourceBackend,
			Topic:  classification.Topic,
		},
	}, nil
}

// generateAndStore calls the backend and persists the answer. When
// coalescing is enabled, concurrent identical queries share a single
// backend call and cache write; each caller still records its own
// metrics terminal.
func (s *Service) generateAndStore(
	ctx context.Context,
	query string,
	embedding []float32,
	classification classifier.Classification,
) (string, error) {
	if !s.config.CoalesceRequests {
		return s.callBackend(ctx, query, embedding, classification)
	}

	// The shared call runs on a context detached from the first caller's
	// cancellation so that coalesced followers are not failed by it.
	// Each caller still honors its own context while waiting.
	key := s.store.Key(query)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return s.callBackend(context.WithoutCancel(ctx), query, embedding, classification)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			s.logger.Debug("Coalesced duplicate backend call", map[string]interface{}{
				"key": key,
			})
		}
		return res.Val.(string), nil

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) callBackend(
	ctx context.Context,
	query string,
	embedding []float32,
	classification classifier.Classification,
) (string, error) {
	s.logger.Info("Cache miss, calling backend", map[string]interface{}{
		"topic": classification.Topic,
	})

	answer, err := s.backend.Generate(ctx, query)
	if err != nil {
		return "", err
	}

	s.store.Store(ctx, store.Entry{
		Query:     query,
		Response:  answer,
		Class:     string(classification.Class),
		Topic:     classification.Topic,
		CreatedAt: time.Now().Unix(),
		Embedding: embedding,
	}, classification.TTL)

	return answer, nil
}

// Stats exposes the metrics snapshot for the stats endpoint.
func (s *Service) Stats() metrics.Stats {
	return s.registry.Snapshot()
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
