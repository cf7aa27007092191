// Package embedding adapts a remote sentence-transformer model behind a
// synchronous, concurrency-safe API. The reference deployment runs
// all-MiniLM-L6-v2 as a sidecar; vectors come back L2-normalized and
// the adapter validates dimensionality. There are no retries here: a
// failed embedding is fatal for the request that needed it.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/developer-mesh/semcache/internal/metrics"
	"github.com/developer-mesh/semcache/pkg/observability"
)

const (
	// DefaultDimensions matches all-MiniLM-L6-v2, the reference model
	DefaultDimensions = 384

	// DefaultTimeout is the default HTTP timeout for embedding requests
	DefaultTimeout = 10 * time.Second
)

// Config configures the HTTP embedder.
type Config struct {
	// BaseURL is the embedding sidecar URL, e.g. "http://localhost:8086"
	BaseURL string

	// Dimensions is the expected vector width
	Dimensions int

	// Timeout bounds each HTTP request
	Timeout time.Duration
}

// HTTPEmbedder calls the embedding sidecar over HTTP. It is safe for
// concurrent use by multiple request handlers.
type HTTPEmbedder struct {
	baseURL    string
	dimensions int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
	metrics    *metrics.PrometheusMetrics
}

// NewHTTPEmbedder creates an embedder for the sidecar at cfg.BaseURL.
// The prom argument may be nil.
func NewHTTPEmbedder(cfg Config, logger observability.Logger, prom *metrics.PrometheusMetrics) *HTTPEmbedder {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	log := logger.WithPrefix("embedding")

	settings := gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}

	return &HTTPEmbedder{
		baseURL:    cfg.BaseURL,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     log,
		metrics:    prom,
	}
}

// Dimensions returns the expected vector width.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed generates the vector for text. The result has exactly the
// configured number of dimensions and unit L2 norm.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text must be non-empty")
	}

	start := time.Now()
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.callEmbedService(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ObserveEmbedding(time.Since(start).Seconds())
	}

	return result.([]float32), nil
}

// callEmbedService makes a single HTTP request to the sidecar.
func (e *HTTPEmbedder) callEmbedService(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(EmbedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp EmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(embedResp.Embedding) != e.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, expected %d",
			len(embedResp.Embedding), e.dimensions)
	}

	// The model normalizes its output; renormalizing is idempotent and
	// keeps the stored-vector unit-norm invariant independent of the
	// sidecar build.
	return Normalize(embedResp.Embedding), nil
}

// Health checks the sidecar and verifies the served model matches the
// expected dimensionality.
func (e *HTTPEmbedder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if health.Dimensions != e.dimensions {
		return fmt.Errorf("embedding dimensions mismatch: got %d, expected %d",
			health.Dimensions, e.dimensions)
	}

	e.logger.Debug("Embedding service healthy", map[string]interface{}{
		"model":      health.Model,
		"dimensions": health.Dimensions,
	})

	return nil
}
