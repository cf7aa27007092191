// Package resilience provides circuit breaker protection for external dependencies
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/developer-mesh/semcache/pkg/observability"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests flow normally
	StateClosed CircuitBreakerState = iota

	// StateOpen means the circuit is open and requests are blocked
	StateOpen

	// StateHalfOpen means the circuit is testing if the dependency recovered
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a probe is admitted
	RecoveryTimeout time.Duration

	// HalfOpenMaxInflight is the max concurrent probes in half-open state
	HalfOpenMaxInflight int

	// OnStateChange is called after every state transition. It runs with
	// the breaker mutex held and must not call back into the breaker.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxInflight: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern for a single
// downstream dependency. All state lives behind one mutex.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger observability.Logger

	mu               sync.RWMutex
	state            CircuitBreakerState
	failureCount     int
	lastFailureTime  time.Time
	halfOpenInflight int
}

// NewCircuitBreaker creates a new circuit breaker for the named dependency
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger observability.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxInflight <= 0 {
		config.HalfOpenMaxInflight = 1
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		logger: logger.WithPrefix("circuit-breaker"),
	}
}

// IsAvailable reports whether a call may be admitted. It is the sole
// admission gate and the only reader that mutates state: it performs
// the open-to-half-open transition once the recovery timeout elapses,
// and while half-open it hands out probe permits. A caller admitted
// during half-open must follow up with RecordSuccess, RecordFailure,
// or Release.
func (cb *CircuitBreaker) IsAvailable() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		// Check if we should transition to half-open
		if time.Since(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenInflight = 1
			cb.logger.Info("Circuit breaker transitioning to half-open", map[string]interface{}{
				"name": cb.name,
			})
			return true
		}
		return false

	case StateHalfOpen:
		// Allow limited probes in half-open state
		if cb.halfOpenInflight < cb.config.HalfOpenMaxInflight {
			cb.halfOpenInflight++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful call. The failure count resets and
// a half-open circuit closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.logger.Info("Circuit breaker closed after successful recovery", map[string]interface{}{
			"name": cb.name,
		})
	}
	cb.failureCount = 0
}

// RecordFailure records a failed call. A half-open circuit re-opens
// immediately; a closed circuit opens once the failure threshold is
// reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch {
	case cb.state == StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.Warn("Circuit breaker re-opened after failure", map[string]interface{}{
			"name":     cb.name,
			"failures": cb.failureCount,
		})

	case cb.state == StateClosed && cb.failureCount >= cb.config.FailureThreshold:
		cb.setState(StateOpen)
		cb.logger.Warn("Circuit breaker opened", map[string]interface{}{
			"name":     cb.name,
			"failures": cb.failureCount,
		})
	}
}

// Release returns a half-open probe permit without recording an
// outcome. Callers use it when a call is abandoned, for example on
// context cancellation, so the probe slot is not leaked.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenInflight > 0 {
		cb.halfOpenInflight--
	}
}

// Execute runs fn under the breaker's admission control. Rejected calls
// return ErrCircuitOpen without invoking fn. A call abandoned because
// the caller's context ended releases its permit and counts neither for
// nor against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.IsAvailable() {
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		cb.Release()
	default:
		cb.RecordFailure()
	}

	return err
}

// setState changes the circuit breaker state and notifies the observer
// hook. Callers must hold the mutex.
func (cb *CircuitBreaker) setState(state CircuitBreakerState) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, state)
	}
}

// Name returns the name of the protected dependency
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state without mutating it
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns circuit breaker statistics for monitoring
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"name":                     cb.name,
		"state":                    cb.state.String(),
		"failure_count":            cb.failureCount,
		"failure_threshold":        cb.config.FailureThreshold,
		"recovery_timeout_seconds": cb.config.RecoveryTimeout.Seconds(),
	}
}
