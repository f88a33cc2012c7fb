package safeguards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthMonitor_EmptyWindowIsHealthy(t *testing.T) {
	hm := NewHealthMonitor(10)

	report := hm.Snapshot()

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 0, report.SampleCount)
}

func TestHealthMonitor_FastSuccessesAreHealthy(t *testing.T) {
	hm := NewHealthMonitor(10)

	for i := 0; i < 5; i++ {
		hm.Record(200*time.Millisecond, true)
	}

	report := hm.Snapshot()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 5, report.SampleCount)
	assert.Equal(t, 200*time.Millisecond, report.MeanLatency)
	assert.Zero(t, report.ErrorRate)
}

func TestHealthMonitor_SlowLatencyDegrades(t *testing.T) {
	hm := NewHealthMonitor(10)

	for i := 0; i < 5; i++ {
		hm.Record(6*time.Second, true)
	}

	assert.Equal(t, StatusDegraded, hm.Snapshot().Status)
}

func TestHealthMonitor_VerySlowLatencyIsUnhealthy(t *testing.T) {
	hm := NewHealthMonitor(10)

	for i := 0; i < 5; i++ {
		hm.Record(11*time.Second, true)
	}

	assert.Equal(t, StatusUnhealthy, hm.Snapshot().Status)
}

func TestHealthMonitor_ErrorRateThresholds(t *testing.T) {
	// 1 failure in 10 = 10% > 5% degraded threshold
	hm := NewHealthMonitor(100)
	for i := 0; i < 9; i++ {
		hm.Record(time.Millisecond, true)
	}
	hm.Record(time.Millisecond, false)
	assert.Equal(t, StatusDegraded, hm.Snapshot().Status)

	// 2 failures in 10 = 20% > 15% unhealthy threshold
	hm = NewHealthMonitor(100)
	for i := 0; i < 8; i++ {
		hm.Record(time.Millisecond, true)
	}
	hm.Record(time.Millisecond, false)
	hm.Record(time.Millisecond, false)
	assert.Equal(t, StatusUnhealthy, hm.Snapshot().Status)
}

func TestHealthMonitor_OldSamplesFallOutOfWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hm := NewHealthMonitor(10)
	hm.now = func() time.Time { return current }

	hm.Record(11*time.Second, false)
	assert.Equal(t, StatusUnhealthy, hm.Snapshot().Status)

	current = current.Add(6 * time.Minute)
	report := hm.Snapshot()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 0, report.SampleCount)
}

func TestHealthMonitor_RingBufferEvictsOldest(t *testing.T) {
	hm := NewHealthMonitor(3)

	// three failures fill the buffer, then three successes overwrite them
	for i := 0; i < 3; i++ {
		hm.Record(time.Millisecond, false)
	}
	for i := 0; i < 3; i++ {
		hm.Record(time.Millisecond, true)
	}

	report := hm.Snapshot()
	assert.Equal(t, 3, report.SampleCount)
	assert.Zero(t, report.ErrorRate)
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestHealthMonitor_Reset(t *testing.T) {
	hm := NewHealthMonitor(10)
	hm.Record(11*time.Second, false)

	hm.Reset()

	report := hm.Snapshot()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 0, report.SampleCount)
}
