package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2023, 10, 27, 13, 0, 0, 0, time.UTC)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 90*time.Second, p.MaxElapsed)
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Delay(i+1), "retry %d", i+1)
	}
	assert.Equal(t, 2*time.Second, p.Delay(0))
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"elapsed", func(p *Policy) { p.MaxElapsed = 0 }},
		{"base", func(p *Policy) { p.Base = 0 }},
		{"multiplier", func(p *Policy) { p.Multiplier = 0.5 }},
		{"cap", func(p *Policy) { p.Cap = time.Second }},
		{"jitter", func(p *Policy) { p.Jitter = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestTrackerJitterBounds(t *testing.T) {
	p := DefaultPolicy()
	low := NewTracker(p, WithClock(NewFakeClock(epoch)), WithRandom(func() float64 { return 0 }))
	high := NewTracker(p, WithClock(NewFakeClock(epoch)), WithRandom(func() float64 { return 0.999999 }))
	mid := NewTracker(p, WithClock(NewFakeClock(epoch)), WithRandom(func() float64 { return 0.5 }))
	for _, tr := range []*Tracker{low, high, mid} {
		require.NoError(t, tr.Begin())
	}

	assert.InDelta(t, float64(1400*time.Millisecond), float64(low.NextDelay()), float64(time.Millisecond))
	assert.InDelta(t, float64(2600*time.Millisecond), float64(high.NextDelay()), float64(time.Millisecond))
	assert.Equal(t, 2*time.Second, mid.NextDelay())
}

func TestTrackerMaxAttempts(t *testing.T) {
	clock := NewFakeClock(epoch)
	p := DefaultPolicy()
	p.MaxElapsed = time.Hour
	tr := NewTracker(p, WithClock(clock))

	for i := 0; i < p.MaxAttempts-1; i++ {
		require.NoError(t, tr.Begin())
		require.NoError(t, tr.Wait(context.Background()))
	}
	require.NoError(t, tr.Begin())
	assert.ErrorIs(t, tr.Wait(context.Background()), ErrMaxAttempts, "no wait after the last attempt")
	assert.ErrorIs(t, tr.Begin(), ErrMaxAttempts)
	assert.Equal(t, p.MaxAttempts, tr.Attempts())
	assert.Len(t, clock.Sleeps(), p.MaxAttempts-1)
}

func TestTrackerMaxElapsed(t *testing.T) {
	clock := NewFakeClock(epoch)
	p := DefaultPolicy()
	p.MaxAttempts = 1000
	tr := NewTracker(p, WithClock(clock))

	var err error
	for {
		if err = tr.Begin(); err != nil {
			break
		}
		if err = tr.Wait(context.Background()); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.LessOrEqual(t, tr.Elapsed(), p.MaxElapsed)
	for _, d := range clock.Sleeps() {
		assert.LessOrEqual(t, d, 13*time.Second)
	}
}

func TestTrackerWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := NewTracker(DefaultPolicy(), WithClock(NewFakeClock(epoch)))
	require.NoError(t, tr.Begin())
	assert.ErrorIs(t, tr.Wait(ctx), context.Canceled)
}

func TestRealClockSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := RealClock().Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
