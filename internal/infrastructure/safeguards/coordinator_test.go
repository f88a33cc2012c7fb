package safeguards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCoordinator(cfg Config) *Coordinator {
	c := NewCoordinator(cfg, zap.NewNop())
	// keep tests off the wall clock
	c.pacer.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestCoordinator_PreflightAdmitsHealthySystem(t *testing.T) {
	c := newTestCoordinator(Config{})

	assert.Nil(t, c.Preflight())
}

func TestCoordinator_ExecuteRunsOperation(t *testing.T) {
	c := newTestCoordinator(Config{})
	ran := false

	err := c.Execute(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)

	status := c.Status()
	assert.Equal(t, 1, status.DailyCount)
	assert.Equal(t, 1, status.HourlyCount)
	assert.Equal(t, 1, status.Health.SampleCount)
}

func TestCoordinator_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := newTestCoordinator(Config{FailureThreshold: 3})
	boom := errors.New("upstream down")

	for i := 0; i < 3; i++ {
		err := c.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	require.Equal(t, StateOpen, c.Status().BreakerState)

	// further calls are rejected without invoking the operation
	invoked := false
	err := c.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})

	var rejection *Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, CodeCircuitOpen, rejection.Code)
	assert.Positive(t, rejection.RetryAfter)
	assert.False(t, invoked)
}

func TestCoordinator_RateLimitRejection(t *testing.T) {
	c := newTestCoordinator(Config{MaxDailyInvoices: 100, MaxHourlyInvoices: 2})

	for i := 0; i < 2; i++ {
		require.NoError(t, c.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	}

	err := c.Execute(context.Background(), func(ctx context.Context) error { return nil })

	var rejection *Rejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, CodeRateLimit, rejection.Code)
	assert.Positive(t, rejection.RetryAfter)
}

func TestCoordinator_EmergencyShutdownRejectsEverything(t *testing.T) {
	c := newTestCoordinator(Config{})

	c.EmergencyShutdown()

	rejection := c.Preflight()
	require.NotNil(t, rejection)
	assert.Equal(t, CodeEmergencyShutdown, rejection.Code)

	c.Reset()
	assert.Nil(t, c.Preflight())
}

func TestCoordinator_CanaryAdmitsConfiguredShare(t *testing.T) {
	c := newTestCoordinator(Config{CanaryPercentage: 5})

	c.EngageCanary(5)

	admitted := 0
	for i := 0; i < 100; i++ {
		if c.Preflight() == nil {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)

	c.ResetCanary()
	assert.Nil(t, c.Preflight())
}

func TestCoordinator_UnhealthySystemBlocksPreflight(t *testing.T) {
	c := newTestCoordinator(Config{})

	// seed the monitor with slow failures
	for i := 0; i < 5; i++ {
		c.monitor.Record(11*time.Second, false)
	}

	rejection := c.Preflight()
	require.NotNil(t, rejection)
	assert.Equal(t, CodeSystemUnhealthy, rejection.Code)
}

func TestCoordinator_SustainedUnhealthyEngagesCanary(t *testing.T) {
	c := newTestCoordinator(Config{FailureThreshold: 1000})

	// every outcome is a slow failure; after the streak threshold the
	// coordinator flips into canary mode on its own
	for i := 0; i < canaryStreakThreshold; i++ {
		c.monitor.Record(11*time.Second, false)
		c.observeHealth()
	}

	assert.True(t, c.Status().CanaryEnabled)
}

func TestCoordinator_StatusSnapshot(t *testing.T) {
	c := newTestCoordinator(Config{CanaryPercentage: 7})

	status := c.Status()

	assert.Equal(t, StateClosed, status.BreakerState)
	assert.Equal(t, 0, status.FailureCount)
	assert.Equal(t, 7, status.CanaryPercent)
	assert.False(t, status.CanaryEnabled)
	assert.False(t, status.ShutdownMode)
	assert.Equal(t, StatusHealthy, status.Health.Status)
}
