package safeguards

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultMaxDaily is the default daily submission ceiling
	DefaultMaxDaily = 10000
	// DefaultMaxHourly is the default hourly submission ceiling
	DefaultMaxHourly = 1000
	// DefaultPerSecond is the default burst ceiling for the request pacer
	DefaultPerSecond = 10
)

// Decision is a rate limiter verdict. RetryAfter is set only on denial.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// RateLimiter enforces fixed daily and hourly submission ceilings. Counters
// reset on wall-clock boundaries (midnight and the top of the hour), not on
// a sliding window.
type RateLimiter struct {
	mu          sync.Mutex
	maxDaily    int
	maxHourly   int
	dailyCount  int
	hourlyCount int
	dayStart    time.Time
	hourStart   time.Time
	now         func() time.Time
}

// NewRateLimiter creates a limiter with the given ceilings. Non-positive
// arguments fall back to the defaults.
func NewRateLimiter(maxDaily, maxHourly int) *RateLimiter {
	if maxDaily <= 0 {
		maxDaily = DefaultMaxDaily
	}
	if maxHourly <= 0 {
		maxHourly = DefaultMaxHourly
	}
	return &RateLimiter{
		maxDaily:  maxDaily,
		maxHourly: maxHourly,
		now:       time.Now,
	}
}

// CanProceed answers whether another submission fits under both ceilings,
// rolling the counters over first if a wall-clock boundary has passed.
func (rl *RateLimiter) CanProceed() Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.rollover(now)

	if rl.dailyCount >= rl.maxDaily {
		return Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("daily limit of %d invoices reached", rl.maxDaily),
			RetryAfter: rl.nextMidnight(now).Sub(now),
		}
	}
	if rl.hourlyCount >= rl.maxHourly {
		return Decision{
			Allowed:    false,
			Reason:     fmt.Sprintf("hourly limit of %d invoices reached", rl.maxHourly),
			RetryAfter: rl.hourStart.Add(time.Hour).Sub(now),
		}
	}
	return Decision{Allowed: true}
}

// Record consumes one slot against both counters
func (rl *RateLimiter) Record() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.rollover(rl.now())
	rl.dailyCount++
	rl.hourlyCount++
}

// Counts returns the current daily and hourly counters
func (rl *RateLimiter) Counts() (daily, hourly int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.rollover(rl.now())
	return rl.dailyCount, rl.hourlyCount
}

// Reset clears both counters
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.dailyCount = 0
	rl.hourlyCount = 0
	rl.dayStart = time.Time{}
	rl.hourStart = time.Time{}
}

// rollover resets counters whose wall-clock window has passed. Caller must
// hold the lock.
func (rl *RateLimiter) rollover(now time.Time) {
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !dayStart.Equal(rl.dayStart) {
		rl.dayStart = dayStart
		rl.dailyCount = 0
	}

	hourStart := now.Truncate(time.Hour)
	if !hourStart.Equal(rl.hourStart) {
		rl.hourStart = hourStart
		rl.hourlyCount = 0
	}
}

func (rl *RateLimiter) nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Pacer bounds request bursts to perSecond submissions inside any sliding
// one-second window. Unlike the ceilings above it never rejects: callers
// over the rate are held until a slot frees up.
type Pacer struct {
	mu        sync.Mutex
	perSecond int
	stamps    []time.Time
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewPacer creates a pacer admitting perSecond requests per sliding second
func NewPacer(perSecond int) *Pacer {
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	return &Pacer{
		perSecond: perSecond,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait blocks until the caller may proceed, or until ctx is cancelled
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := p.now()
		cutoff := now.Add(-time.Second)

		kept := p.stamps[:0]
		for _, stamp := range p.stamps {
			if stamp.After(cutoff) {
				kept = append(kept, stamp)
			}
		}
		p.stamps = kept

		if len(p.stamps) < p.perSecond {
			p.stamps = append(p.stamps, now)
			p.mu.Unlock()
			return nil
		}

		wait := p.stamps[0].Add(time.Second).Sub(now)
		p.mu.Unlock()

		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
