// Package backoff holds the single retry policy shared by the push queue and
// by every other retryable remote call (pulls, probes).
package backoff

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy describes exponential backoff: attempt n waits
// BaseDelay * Multiplier^(n-1), never longer than MaxDelay, and at most
// MaxAttempts retries are scheduled automatically.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// Default returns 1s, 2s, 4s, 8s, 16s and then gives up.
func Default() Policy {
	return Policy{
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    16 * time.Second,
		MaxAttempts: 5,
	}
}

func (p Policy) normalized() Policy {
	d := Default()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Delay returns how long to wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	f := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if f >= float64(p.MaxDelay) || math.IsInf(f, 0) {
		return p.MaxDelay
	}
	return time.Duration(f)
}

// Exhausted reports whether the given number of failed retries used up the
// automatic retry budget.
func (p Policy) Exhausted(failures int) bool {
	return failures >= p.normalized().MaxAttempts
}

// Backoff adapts the policy to go-retry. The returned value is stateful and
// must not be shared between independent retry loops.
func (p Policy) Backoff() retry.Backoff {
	p = p.normalized()

	var (
		mu      sync.Mutex
		attempt int
	)
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()
		attempt++
		return p.Delay(attempt), false
	})
	return retry.WithMaxRetries(uint64(p.MaxAttempts), retry.WithCappedDuration(p.MaxDelay, b))
}

// Do runs fn until it succeeds, returns a non-transient error, the policy is
// exhausted or ctx is done. isTransient decides which errors are retried;
// nil means every error is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, isTransient func(error) bool) error {
	return retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient == nil || isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
