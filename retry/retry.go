// Package retry re-runs transient failures with exponential backoff and
// jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls how Do retries. Zero fields take the defaults below.
type Config struct {
	// Attempts is the total number of calls, the first included. Default 3.
	Attempts int

	// InitialBackoff is the delay before the second call. Default 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay. Default 10s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each failure. Default 2.
	Multiplier float64

	// Jitter spreads each delay by up to this fraction in either direction.
	// Clamped to [0, 1].
	Jitter float64

	// Retryable decides whether a failure is worth another call.
	// Default: everything except Permanent errors and context errors.
	Retryable func(error) bool

	// OnRetry, if set, observes each failure that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

const (
	defaultAttempts       = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultMultiplier     = 2.0
)

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = defaultAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaultMultiplier
	}
	c.Jitter = math.Min(math.Max(c.Jitter, 0), 1)
	if c.Retryable == nil {
		c.Retryable = IsRetryable
	}
	return c
}

// backoff returns the delay after the given failed attempt (1-based),
// before jitter.
func (c Config) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	return time.Duration(d)
}

func (c Config) jittered(d time.Duration) time.Duration {
	if c.Jitter == 0 {
		return d
	}
	spread := float64(d) * c.Jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// ErrExhausted is matched by the error Do returns after its last attempt.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Error reports a call that did not succeed. It unwraps to the last failure.
type Error struct {
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry: failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrExhausted && e.Exhausted
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx ends.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return &Error{Attempts: attempt - 1, Err: errors.Join(last, err)}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !cfg.Retryable(last) {
			return &Error{Attempts: attempt, Err: last}
		}
		if attempt >= cfg.Attempts {
			return &Error{Attempts: attempt, Exhausted: true, Err: last}
		}

		delay := cfg.jittered(cfg.backoff(attempt))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, last)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Attempts: attempt, Err: errors.Join(last, ctx.Err())}
		case <-timer.C:
		}
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsRetryable is the default Retryable: false for Permanent errors and
// context cancellation, true otherwise.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
