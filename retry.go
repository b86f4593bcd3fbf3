package mysqlr

import (
	"context"
	"math"
	"time"

	"github.com/gandaldf/mysqlr/metrics"
)

// RetryPolicy controls Retry. The wait before retry number n (n from 0) is
// Base^n seconds.
type RetryPolicy struct {
	Base        float64
	MaxAttempts int
	// MaxDelay caps a single wait. Zero means DefaultRetryPolicy.MaxDelay.
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done. Nil means a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy waits 1s, 2s, 4s, ... for at most 8 attempts. No single
// wait exceeds one hour.
var DefaultRetryPolicy = RetryPolicy{Base: 2, MaxAttempts: 8, MaxDelay: time.Hour}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Base <= 0 {
		p.Base = DefaultRetryPolicy.Base
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait before retry number attempt, clamped to MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultRetryPolicy.MaxDelay
	}
	// compare in seconds; the product overflows int64 long before Pow does
	secs := math.Pow(p.Base, float64(attempt))
	if math.IsNaN(secs) || secs >= limit.Seconds() {
		return limit
	}
	return time.Duration(secs * float64(time.Second))
}

// Retry calls op until it succeeds, fails with an error that IsTransient
// rejects, or p.MaxAttempts calls have been made. The last error is returned
// unchanged.
//
// Cancelling ctx stops the loop during a wait and returns ctx.Err().
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var (
		v   T
		err error
	)
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err = op(ctx)
		if err == nil || !IsTransient(err) {
			return v, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		metrics.RecordRetry(errorCode(err))
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return v, serr
		}
	}
	return v, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
