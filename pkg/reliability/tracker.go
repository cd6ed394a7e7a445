package reliability

import (
	"context"
	"math/rand"
	"time"
)

// Tracker counts attempts against a Policy for one polling loop
type Tracker struct {
	policy   Policy
	clock    Clock
	random   func() float64
	started  time.Time
	attempts int
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithClock replaces the system clock
func WithClock(c Clock) TrackerOption {
	return func(t *Tracker) { t.clock = c }
}

// WithRandom replaces the jitter source; f must return values in [0, 1)
func WithRandom(f func() float64) TrackerOption {
	return func(t *Tracker) { t.random = f }
}

// NewTracker starts a loop now
func NewTracker(policy Policy, opts ...TrackerOption) *Tracker {
	t := &Tracker{policy: policy, clock: RealClock(), random: rand.Float64}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.clock.Now()
	return t
}

// Attempts returns how many attempts have been started
func (t *Tracker) Attempts() int { return t.attempts }

// Elapsed returns the time since the loop started
func (t *Tracker) Elapsed() time.Duration { return t.clock.Now().Sub(t.started) }

// Begin registers a new attempt. It fails with ErrMaxAttempts or ErrTimeout
// when the policy is exhausted.
func (t *Tracker) Begin() error {
	if t.attempts >= t.policy.MaxAttempts {
		return ErrMaxAttempts
	}
	if t.Elapsed() >= t.policy.MaxElapsed {
		return ErrTimeout
	}
	t.attempts++
	return nil
}

// NextDelay returns the jittered wait after the current attempt
func (t *Tracker) NextDelay() time.Duration {
	d := t.policy.Delay(t.attempts)
	if t.policy.Jitter > 0 {
		factor := 1 + t.policy.Jitter*(2*t.random()-1)
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Wait sleeps for the next delay, trimmed so the loop never sleeps past
// MaxElapsed. It returns ErrMaxAttempts without sleeping once the last
// attempt has been used, ErrTimeout when no time is left and the context
// error when cancelled.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.attempts >= t.policy.MaxAttempts {
		return ErrMaxAttempts
	}
	d := t.NextDelay()
	remaining := t.policy.MaxElapsed - t.Elapsed()
	if remaining <= 0 {
		return ErrTimeout
	}
	if d > remaining {
		d = remaining
	}
	return t.clock.Sleep(ctx, d)
}
