package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semcache/internal/resilience"
)

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (s *stubGenerator) Generate(ctx context.Context, query string) (string, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.answer, s.err
}

func newTestBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("backend", resilience.CircuitBreakerConfig{
		FailureThreshold:    3,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxInflight: 1,
	}, nil)
}

func TestBackend_Generate(t *testing.T) {
	gen := &stubGenerator{answer: "Paris."}
	b := NewBackend(gen, newTestBreaker(), nil)

	answer, err := b.Generate(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, 1, gen.calls)
}

func TestBackend_GenerateRateLimitedPassesThrough(t *testing.T) {
	gen := &stubGenerator{err: ErrRateLimited}
	b := NewBackend(gen, newTestBreaker(), nil)

	_, err := b.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestBackend_GenerateWrapsOtherErrors(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}
	b := NewBackend(gen, newTestBreaker(), nil)

	_, err := b.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestBackend_GenerateCircuitOpenFailsFast(t *testing.T) {
	breaker := newTestBreaker()
	gen := &stubGenerator{err: errors.New("down")}
	b := NewBackend(gen, breaker, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), "anything")
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, breaker.State())

	// The open breaker rejects before the generator is consulted.
	_, err := b.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 3, gen.calls)
}

func TestBackend_FailuresCountAgainstBreaker(t *testing.T) {
	breaker := newTestBreaker()
	b := NewBackend(&stubGenerator{err: ErrRateLimited}, breaker, nil)

	// Rate-limit responses are failures for breaker accounting too.
	for i := 0; i < 3; i++ {
		_, _ = b.Generate(context.Background(), "anything")
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())
}

func TestBackend_CancellationIsNotAFailure(t *testing.T) {
	breaker := newTestBreaker()
	gen := &stubGenerator{answer: "unused"}
	b := NewBackend(gen, breaker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Generate(ctx, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// A cancelled call must not push the breaker toward open.
	for i := 0; i < 2; i++ {
		cancelled, c := context.WithCancel(context.Background())
		c()
		_, _ = b.Generate(cancelled, "anything")
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())
}
