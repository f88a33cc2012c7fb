package safeguards

import (
	"sync"
	"time"
)

// HealthStatus is the monitor's overall verdict
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "HEALTHY"
	StatusDegraded  HealthStatus = "DEGRADED"
	StatusUnhealthy HealthStatus = "UNHEALTHY"
)

const (
	// DefaultSampleCapacity is the ring buffer size for health samples
	DefaultSampleCapacity = 1000
	// reportWindow is the trailing window health metrics are computed over
	reportWindow = 5 * time.Minute

	degradedLatency  = 5 * time.Second
	unhealthyLatency = 10 * time.Second
	degradedErrors   = 0.05
	unhealthyErrors  = 0.15
)

type healthSample struct {
	timestamp time.Time
	latency   time.Duration
	success   bool
}

// Report summarizes recent request health over the trailing window
type Report struct {
	Status         HealthStatus  `json:"status"`
	MeanLatency    time.Duration `json:"mean_latency"`
	ErrorRate      float64       `json:"error_rate"`
	RequestsPerMin float64       `json:"requests_per_min"`
	SampleCount    int           `json:"sample_count"`
}

// HealthMonitor keeps a bounded ring buffer of recent request outcomes and
// derives an overall status from mean latency and error rate over the last
// five minutes. An empty window is healthy.
type HealthMonitor struct {
	mu       sync.Mutex
	samples  []healthSample
	next     int
	filled   bool
	capacity int
	now      func() time.Time
}

// NewHealthMonitor creates a monitor retaining up to capacity samples
func NewHealthMonitor(capacity int) *HealthMonitor {
	if capacity <= 0 {
		capacity = DefaultSampleCapacity
	}
	return &HealthMonitor{
		samples:  make([]healthSample, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Record appends one request outcome, evicting the oldest sample when full
func (hm *HealthMonitor) Record(latency time.Duration, success bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.samples[hm.next] = healthSample{
		timestamp: hm.now(),
		latency:   latency,
		success:   success,
	}
	hm.next++
	if hm.next == hm.capacity {
		hm.next = 0
		hm.filled = true
	}
}

// Snapshot computes the current health report
func (hm *HealthMonitor) Snapshot() Report {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	cutoff := hm.now().Add(-reportWindow)

	count := hm.next
	if hm.filled {
		count = hm.capacity
	}

	var (
		inWindow     int
		failures     int
		totalLatency time.Duration
	)
	for i := 0; i < count; i++ {
		s := hm.samples[i]
		if s.timestamp.Before(cutoff) {
			continue
		}
		inWindow++
		totalLatency += s.latency
		if !s.success {
			failures++
		}
	}

	report := Report{Status: StatusHealthy, SampleCount: inWindow}
	if inWindow == 0 {
		return report
	}

	report.MeanLatency = totalLatency / time.Duration(inWindow)
	report.ErrorRate = float64(failures) / float64(inWindow)
	report.RequestsPerMin = float64(inWindow) / reportWindow.Minutes()

	switch {
	case report.MeanLatency > unhealthyLatency || report.ErrorRate > unhealthyErrors:
		report.Status = StatusUnhealthy
	case report.MeanLatency > degradedLatency || report.ErrorRate > degradedErrors:
		report.Status = StatusDegraded
	}
	return report
}

// Reset discards all samples
func (hm *HealthMonitor) Reset() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.next = 0
	hm.filled = false
}
