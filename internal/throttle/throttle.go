// Package throttle paces calls to the location provider.
package throttle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle blocks until the next provider call may proceed. Implementations
// must be safe for concurrent use.
type Throttle interface {
	Wait(ctx context.Context) error
}

// FixedDelay sleeps for a constant duration on every Wait. Placed after each
// call it caps a single worker at one call per Delay.
type FixedDelay struct {
	Delay time.Duration
}

// NewFixedDelay returns a FixedDelay throttle.
func NewFixedDelay(d time.Duration) *FixedDelay {
	return &FixedDelay{Delay: d}
}

// Wait implements Throttle.
func (f *FixedDelay) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "throttle: fixed delay")
	case <-timer.C:
		return nil
	}
}

// TokenBucket shares a global call rate across workers.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows rps calls per second with the given burst.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait implements Throttle.
func (t *TokenBucket) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "throttle: token bucket")
	}
	return nil
}

// None never blocks.
type None struct{}

// Wait implements Throttle.
func (None) Wait(ctx context.Context) error { return ctx.Err() }

// Scale returns a FixedDelay of d scaled by factor, used for the short pause
// between proximity tiers.
func Scale(d time.Duration, factor float64) *FixedDelay {
	return NewFixedDelay(time.Duration(float64(d) * factor))
}

// Shared returns a throttle that caps the combined rate of concurrent
// callers. A FixedDelay only paces its own caller, so it is replaced by a
// token bucket allowing one call per Delay. Other throttles are returned as is.
func Shared(t Throttle) Throttle {
	f, ok := t.(*FixedDelay)
	if !ok || f.Delay <= 0 {
		return t
	}
	return NewTokenBucket(float64(time.Second)/float64(f.Delay), 1)
}

// New picks the throttle for a run: a token bucket when rps is set,
// otherwise a fixed delay, shared across workers when there are several.
func New(delay time.Duration, rps float64, workers int) Throttle {
	if rps > 0 {
		return NewTokenBucket(rps, 1)
	}
	if workers > 1 {
		return Shared(NewFixedDelay(delay))
	}
	return NewFixedDelay(delay)
}
