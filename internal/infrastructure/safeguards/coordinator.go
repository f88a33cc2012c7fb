package safeguards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rejection codes returned by preflight
const (
	CodeRateLimit         = "RATE_LIMIT"
	CodeCircuitOpen       = "CIRCUIT_OPEN"
	CodeSystemUnhealthy   = "SYSTEM_UNHEALTHY"
	CodeCanaryRejected    = "CANARY_REJECTED"
	CodeEmergencyShutdown = "EMERGENCY_SHUTDOWN"
)

// DefaultCanaryPercentage is the share of traffic admitted in canary mode
const DefaultCanaryPercentage = 5

// canaryStreakThreshold is how many consecutive unhealthy outcomes engage
// canary mode automatically
const canaryStreakThreshold = 10

// Rejection is a preflight denial. RetryAfter is a hint, set when computable.
type Rejection struct {
	Code       string        `json:"code"`
	Reason     string        `json:"reason"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface
func (r *Rejection) Error() string {
	return fmt.Sprintf("safeguard rejection (%s): %s", r.Code, r.Reason)
}

// Config carries all safeguard tuning knobs. Every field is explicit so one
// process can host several tenant configurations side by side.
type Config struct {
	MaxDailyInvoices   int
	MaxHourlyInvoices  int
	RateLimitPerSecond int
	FailureThreshold   int
	RecoveryTimeout    time.Duration
	CanaryPercentage   int
	SampleCapacity     int
}

// Status is a point-in-time view of every safeguard, exposed for operators
type Status struct {
	BreakerState  BreakerState `json:"breaker_state"`
	FailureCount  int          `json:"failure_count"`
	DailyCount    int          `json:"daily_count"`
	HourlyCount   int          `json:"hourly_count"`
	Health        Report       `json:"health"`
	CanaryEnabled bool         `json:"canary_enabled"`
	CanaryPercent int          `json:"canary_percent,omitempty"`
	ShutdownMode  bool         `json:"shutdown_mode"`
}

// Coordinator composes the rate limiter, circuit breaker, and health
// monitor into a single admit/deny gate consulted before every remote
// operation. It also owns the two operator overrides: canary mode (admit a
// small slice of traffic while the system recovers) and emergency shutdown
// (admit nothing).
type Coordinator struct {
	breaker *CircuitBreaker
	limiter *RateLimiter
	pacer   *Pacer
	monitor *HealthMonitor
	logger  *zap.Logger

	mu              sync.Mutex
	canaryEnabled   bool
	canaryPercent   int
	canaryCounter   int
	shutdown        bool
	unhealthyStreak int
}

// NewCoordinator builds a coordinator from the given config
func NewCoordinator(cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	canaryPercent := cfg.CanaryPercentage
	if canaryPercent <= 0 || canaryPercent > 100 {
		canaryPercent = DefaultCanaryPercentage
	}
	return &Coordinator{
		breaker:       NewCircuitBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout),
		limiter:       NewRateLimiter(cfg.MaxDailyInvoices, cfg.MaxHourlyInvoices),
		pacer:         NewPacer(cfg.RateLimitPerSecond),
		monitor:       NewHealthMonitor(cfg.SampleCapacity),
		logger:        logger,
		canaryPercent: canaryPercent,
	}
}

// Preflight combines every safeguard into one admit/deny decision. A nil
// return admits the operation.
func (c *Coordinator) Preflight() *Rejection {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return &Rejection{Code: CodeEmergencyShutdown, Reason: "system is in emergency shutdown"}
	}
	canaryEnabled := c.canaryEnabled
	if canaryEnabled {
		admitted := c.canaryCounter%100 < c.canaryPercent
		c.canaryCounter++
		if !admitted {
			c.mu.Unlock()
			return &Rejection{
				Code:   CodeCanaryRejected,
				Reason: fmt.Sprintf("canary mode active, admitting %d%% of traffic", c.canaryPercent),
			}
		}
	}
	c.mu.Unlock()

	if allowed, retryAfter := c.breaker.Check(); !allowed {
		return &Rejection{
			Code:       CodeCircuitOpen,
			Reason:     "circuit breaker is open",
			RetryAfter: retryAfter,
		}
	}

	if decision := c.limiter.CanProceed(); !decision.Allowed {
		return &Rejection{
			Code:       CodeRateLimit,
			Reason:     decision.Reason,
			RetryAfter: decision.RetryAfter,
		}
	}

	// canary mode is the controlled path through an unhealthy system, so the
	// health gate only applies to normal admission
	if !canaryEnabled {
		if report := c.monitor.Snapshot(); report.Status == StatusUnhealthy {
			return &Rejection{
				Code: CodeSystemUnhealthy,
				Reason: fmt.Sprintf("system unhealthy: mean latency %s, error rate %.1f%%",
					report.MeanLatency, report.ErrorRate*100),
			}
		}
	}

	return nil
}

// Execute runs op behind the full safeguard stack: preflight, burst pacing,
// counter accounting, breaker bookkeeping, and health sampling. The op's
// error is returned unwrapped so callers can classify it.
func (c *Coordinator) Execute(ctx context.Context, op func(context.Context) error) error {
	if rejection := c.Preflight(); rejection != nil {
		return rejection
	}
	return c.ExecuteAdmitted(ctx, op)
}

// ExecuteAdmitted runs an operation that already passed Preflight: burst
// pacing, counter accounting, breaker bookkeeping, and health sampling,
// without re-running the admission gate. Callers that gate early (to reject
// before doing local work) use this to avoid consuming two canary slots per
// operation.
func (c *Coordinator) ExecuteAdmitted(ctx context.Context, op func(context.Context) error) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}
	c.limiter.Record()

	start := time.Now()
	err := op(ctx)
	latency := time.Since(start)

	if err != nil {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	c.monitor.Record(latency, err == nil)
	c.observeHealth()

	return err
}

// observeHealth engages canary mode automatically after a sustained run of
// unhealthy outcomes
func (c *Coordinator) observeHealth() {
	report := c.monitor.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	if report.Status != StatusUnhealthy {
		c.unhealthyStreak = 0
		return
	}

	c.unhealthyStreak++
	if c.unhealthyStreak >= canaryStreakThreshold && !c.canaryEnabled {
		c.canaryEnabled = true
		c.canaryCounter = 0
		c.logger.Warn("sustained unhealthy state, engaging canary mode",
			zap.Int("canary_percent", c.canaryPercent),
			zap.Duration("mean_latency", report.MeanLatency),
			zap.Float64("error_rate", report.ErrorRate))
	}
}

// EngageCanary manually enables canary mode at the given admission percentage
func (c *Coordinator) EngageCanary(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if percent > 0 && percent <= 100 {
		c.canaryPercent = percent
	}
	c.canaryEnabled = true
	c.canaryCounter = 0
	c.logger.Warn("canary mode engaged", zap.Int("canary_percent", c.canaryPercent))
}

// ResetCanary disables canary mode and resumes full admission
func (c *Coordinator) ResetCanary() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.canaryEnabled = false
	c.unhealthyStreak = 0
	c.logger.Info("canary mode reset")
}

// EmergencyShutdown stops admitting any traffic until Reset is called
func (c *Coordinator) EmergencyShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	c.logger.Error("emergency shutdown engaged, rejecting all traffic")
}

// Reset restores every safeguard to its initial state
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.shutdown = false
	c.canaryEnabled = false
	c.canaryCounter = 0
	c.unhealthyStreak = 0
	c.mu.Unlock()

	c.breaker.Reset()
	c.limiter.Reset()
	c.monitor.Reset()
	c.logger.Info("safeguards reset")
}

// Status reports the current state of every safeguard
func (c *Coordinator) Status() Status {
	daily, hourly := c.limiter.Counts()

	c.mu.Lock()
	canaryEnabled := c.canaryEnabled
	canaryPercent := c.canaryPercent
	shutdown := c.shutdown
	c.mu.Unlock()

	return Status{
		BreakerState:  c.breaker.State(),
		FailureCount:  c.breaker.Failures(),
		DailyCount:    daily,
		HourlyCount:   hourly,
		Health:        c.monitor.Snapshot(),
		CanaryEnabled: canaryEnabled,
		CanaryPercent: canaryPercent,
		ShutdownMode:  shutdown,
	}
}
