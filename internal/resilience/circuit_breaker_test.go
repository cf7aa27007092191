package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semcache/pkg/observability"
)

func newTestBreaker(t *testing.T, config CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker("test", config, observability.NewNoopLogger())
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.IsAvailable())

	// Exactly the third consecutive failure trips the circuit
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.IsAvailable())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxInflight: 1,
	})

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.IsAvailable())

	time.Sleep(30 * time.Millisecond)

	// The admission check performs the open-to-half-open transition and
	// consumes the single probe permit
	assert.True(t, cb.IsAvailable())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.IsAvailable())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.IsAvailable())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxInflight: 1,
	})

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.IsAvailable())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.IsAvailable())
}

func TestCircuitBreakerHalfOpenInflightCap(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxInflight: 2,
	})

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)

	assert.True(t, cb.IsAvailable())
	assert.True(t, cb.IsAvailable())
	assert.False(t, cb.IsAvailable())
}

func TestCircuitBreakerReleaseReturnsProbePermit(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxInflight: 1,
	})

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.IsAvailable())
	require.False(t, cb.IsAvailable())

	cb.Release()
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.IsAvailable())
}

func TestCircuitBreakerExecute(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("success passes through", func(t *testing.T) {
		cb := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
		err := cb.Execute(context.Background(), func() error { return nil })
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure propagates and trips the circuit", func(t *testing.T) {
		cb := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
		err := cb.Execute(context.Background(), func() error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("open circuit rejects without invoking fn", func(t *testing.T) {
		cb := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})
		cb.RecordFailure()

		called := false
		err := cb.Execute(context.Background(), func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called)
	})

	t.Run("cancellation releases the probe without a verdict", func(t *testing.T) {
		cb := newTestBreaker(t, CircuitBreakerConfig{
			FailureThreshold:    1,
			RecoveryTimeout:     20 * time.Millisecond,
			HalfOpenMaxInflight: 1,
		})
		cb.RecordFailure()
		time.Sleep(30 * time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		err := cb.Execute(ctx, func() error {
			cancel()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.Canceled)

		// The circuit stays half-open and the permit can be handed out again
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.True(t, cb.IsAvailable())
	})
}

func TestCircuitBreakerOnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := NewCircuitBreaker("probe", CircuitBreakerConfig{
		FailureThreshold:    1,
		RecoveryTimeout:     20 * time.Millisecond,
		HalfOpenMaxInflight: 1,
		OnStateChange: func(name string, from, to CircuitBreakerState) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	}, observability.NewNoopLogger())

	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.IsAvailable())
	cb.RecordSuccess()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  10 * time.Second,
	}, observability.NewNoopLogger())

	cb.RecordFailure()

	stats := cb.Stats()
	assert.Equal(t, "redis", stats["name"])
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, 1, stats["failure_count"])
	assert.Equal(t, 3, stats["failure_threshold"])
	assert.Equal(t, 10.0, stats["recovery_timeout_seconds"])
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("deps", CircuitBreakerConfig{}, nil)

	stats := cb.Stats()
	assert.Equal(t, 5, stats["failure_threshold"])
	assert.Equal(t, 30.0, stats["recovery_timeout_seconds"])
}

func BenchmarkCircuitBreakerClosedPath(b *testing.B) {
	cb := NewCircuitBreaker("bench", CircuitBreakerConfig{
		FailureThreshold: 1 << 20,
		RecoveryTimeout:  time.Minute,
	}, observability.NewNoopLogger())

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if cb.IsAvailable() {
			cb.RecordSuccess()
		}
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1 << 20,
		RecoveryTimeout:  time.Minute,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if cb.IsAvailable() {
					if j%2 == 0 {
						cb.RecordSuccess()
					} else {
						cb.RecordFailure()
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.State())
}
