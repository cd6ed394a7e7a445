// Package reliability implements the bounded retry schedule used while polling
// SEFAZ for a batch result
package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a polling loop
type Policy struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	MaxElapsed  time.Duration `yaml:"maxElapsed"`
	Base        time.Duration `yaml:"base"`
	Multiplier  float64       `yaml:"multiplier"`
	Cap         time.Duration `yaml:"cap"`
	// Jitter is the fraction applied symmetrically around each delay
	Jitter float64 `yaml:"jitter"`
}

// DefaultPolicy returns the polling schedule for batch results
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		MaxElapsed:  90 * time.Second,
		Base:        2 * time.Second,
		Multiplier:  1.5,
		Cap:         10 * time.Second,
		Jitter:      0.3,
	}
}

// Validate checks the policy for unusable values
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("maxAttempts must be at least 1")
	case p.MaxElapsed <= 0:
		return fmt.Errorf("maxElapsed must be positive")
	case p.Base <= 0:
		return fmt.Errorf("base delay must be positive")
	case p.Multiplier < 1:
		return fmt.Errorf("multiplier must be at least 1")
	case p.Cap < p.Base:
		return fmt.Errorf("cap must not be below the base delay")
	case p.Jitter < 0 || p.Jitter >= 1:
		return fmt.Errorf("jitter must be in [0, 1)")
	}
	return nil
}

// Delay returns the un-jittered wait before the given retry (1-based)
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(p.Base)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
		if d >= float64(p.Cap) {
			return p.Cap
		}
	}
	return time.Duration(d)
}

// Clock abstracts time for the polling loop
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock uses the system clock and timers
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exhaustion reasons
var (
	ErrMaxAttempts = errors.New("maximum polling attempts reached")
	ErrTimeout     = errors.New("maximum polling time elapsed")
)
