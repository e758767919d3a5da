// Package resilience retries location provider calls with exponential
// backoff.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a provider call is repeated.
type Policy struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int

	// Base is the wait after the first failure. Each further failure
	// doubles it. Default: 250ms.
	Base time.Duration

	// Max caps a single wait. Default: 10s.
	Max time.Duration

	// ShouldRetry decides whether a failure is worth another try.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the attempt that just
	// failed, the wait, and its error.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy returns three attempts doubling from 250ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     250 * time.Millisecond,
		Max:      10 * time.Second,
	}
}

// PolicyFor builds the provider policy from configuration. The base wait is
// the provider call delay so retries stay proportional to the rate limit.
// Non-positive values keep the defaults.
func PolicyFor(attempts int, base time.Duration) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if base > 0 {
		p.Base = base
	}
	return p
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// Wait returns how long to sleep after the given 1-based attempt failed:
// Base * 2^(attempt-1), capped at Max.
func (p Policy) Wait(attempt int) time.Duration {
	p = p.withDefaults()
	wait := p.Base
	for i := 1; i < attempt; i++ {
		if wait >= p.Max/2 {
			return p.Max
		}
		wait *= 2
	}
	if wait > p.Max {
		return p.Max
	}
	return wait
}

// Retry runs fn until it succeeds, the policy rejects the error, attempts
// run out, or ctx is done. It returns the value, the number of attempts
// made, and the last error from fn.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, attempt, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !p.ShouldRetry(err) {
			return zero, attempt, err
		}

		wait := p.Wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, err
		case <-timer.C:
		}
	}
}

// LogRetries returns an OnRetry callback that logs each retry of op.
func LogRetries(provider, op string) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, err error) {
		zap.L().Warn("retrying provider call",
			zap.String("provider", provider),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}
}
