package safeguards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	allowed, retryAfter := cb.Check()
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_RecoveryProbe(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return current }

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	allowed, _ := cb.Check()
	assert.False(t, allowed)

	// recovery timeout elapses, one probe is let through
	current = current.Add(61 * time.Second)
	allowed, retryAfter := cb.Check()
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return current }

	cb.RecordFailure()
	current = current.Add(2 * time.Minute)
	allowed, _ := cb.Check()
	require.True(t, allowed)

	cb.RecordSuccess()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(5, time.Minute)
	cb.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	current = current.Add(2 * time.Minute)
	allowed, _ := cb.Check()
	require.True(t, allowed)

	// a single failure in half-open reopens regardless of the threshold
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	allowed, _ = cb.Check()
	assert.False(t, allowed)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.RecordFailure()

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}
