package safeguards

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current position
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens the breaker
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long the breaker stays open before probing
	DefaultRecoveryTimeout = 60 * time.Second
)

// CircuitBreaker protects the remote service from retry storms. After
// failureThreshold consecutive failures it opens and rejects immediately;
// once recoveryTimeout elapses a single probe request is let through, and
// its outcome decides whether the breaker closes again or reopens.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	lastFailure      time.Time
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to the defaults.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Check reports whether an attempt may proceed right now. When the breaker
// is open and the recovery timeout has not elapsed, retryAfter carries the
// remaining wait. An allowed call while open moves the breaker to half-open.
func (cb *CircuitBreaker) Check() (allowed bool, retryAfter time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailure)
		if elapsed < cb.recoveryTimeout {
			return false, cb.recoveryTimeout - elapsed
		}
		cb.state = StateHalfOpen
		return true, 0
	default:
		return true, 0
	}
}

// RecordSuccess resets the breaker to closed and clears the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
}

// RecordFailure counts a failure. A failure in half-open reopens the breaker
// immediately; in closed, reaching the threshold opens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
}

// State returns the breaker's current position
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker back to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
}
