package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/developer-mesh/semcache/internal/resilience"
	"github.com/developer-mesh/semcache/pkg/observability"
)

// Generator is the raw backend call the adapter guards.
type Generator interface {
	Generate(ctx context.Context, query string) (string, error)
}

// Backend gates backend calls through a circuit breaker and maps every
// failure onto the error taxonomy: an open breaker or an unclassified
// failure becomes ErrBackendUnavailable, a rate-limit signal stays
// ErrRateLimited. Both failure kinds count against the breaker; a call
// abandoned by the caller's context counts neither way.
type Backend struct {
	generator Generator
	breaker   *resilience.CircuitBreaker
	logger    observability.Logger
}

// NewBackend wraps generator with the given breaker.
func NewBackend(generator Generator, breaker *resilience.CircuitBreaker, logger observability.Logger) *Backend {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Backend{
		generator: generator,
		breaker:   breaker,
		logger:    logger.WithPrefix("backend"),
	}
}

// Generate answers query via the protected backend.
func (b *Backend) Generate(ctx context.Context, query string) (string, error) {
	if !b.breaker.IsAvailable() {
		b.logger.Warn("Backend circuit breaker is open, rejecting call", nil)
		return "", fmt.Errorf("%w: circuit breaker open", ErrBackendUnavailable)
	}

	answer, err := b.generator.Generate(ctx, query)
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
		return answer, nil

	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// Abandoned, not failed: hand back any half-open permit.
		b.breaker.Release()
		return "", err

	case errors.Is(err, ErrRateLimited):
		b.breaker.RecordFailure()
		b.logger.Warn("Backend rate limited", map[string]interface{}{
			"error": err.Error(),
		})
		return "", err

	default:
		b.breaker.RecordFailure()
		b.logger.Error("Backend call failed", map[string]interface{}{
			"error": err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
