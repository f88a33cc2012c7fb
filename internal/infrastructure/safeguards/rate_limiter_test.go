package safeguards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_HourlyCeiling(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	rl := NewRateLimiter(100, 3)
	rl.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		require.True(t, rl.CanProceed().Allowed)
		rl.Record()
	}

	decision := rl.CanProceed()
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "hourly limit")
	assert.Equal(t, 30*time.Minute, decision.RetryAfter)

	// counter resets at the top of the hour
	current = time.Date(2025, 6, 1, 13, 0, 1, 0, time.UTC)
	decision = rl.CanProceed()
	assert.True(t, decision.Allowed)
	_, hourly := rl.Counts()
	assert.Equal(t, 0, hourly)
}

func TestRateLimiter_DailyCeiling(t *testing.T) {
	current := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 100)
	rl.now = func() time.Time { return current }

	rl.Record()
	rl.Record()

	decision := rl.CanProceed()
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "daily limit")
	assert.Equal(t, 6*time.Hour, decision.RetryAfter)

	// counter resets at midnight
	current = time.Date(2025, 6, 2, 0, 0, 1, 0, time.UTC)
	assert.True(t, rl.CanProceed().Allowed)
	daily, _ := rl.Counts()
	assert.Equal(t, 0, daily)
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rl.Record()
	rl.Record()

	rl.Reset()

	daily, hourly := rl.Counts()
	assert.Equal(t, 0, daily)
	assert.Equal(t, 0, hourly)
}

func TestPacer_AdmitsUpToLimitWithoutWaiting(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPacer(3)
	p.now = func() time.Time { return current }
	slept := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		current = current.Add(d)
		return nil
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Equal(t, 0, slept)
}

func TestPacer_DelaysInsteadOfRejecting(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPacer(2)
	p.now = func() time.Time { return current }
	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		current = current.Add(d)
		return nil
	}

	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	// third call inside the same second is held until the oldest slot ages out
	require.NoError(t, p.Wait(context.Background()))

	require.Len(t, waits, 1)
	assert.Equal(t, time.Second, waits[0])
}

func TestPacer_WaitHonorsContextCancellation(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPacer(1)
	p.now = func() time.Time { return current }

	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Wait(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
