package resiliency

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Transient marks an error as eligible for retry (spec.md §4.9: "only for
// the enumerated transient kinds: I/O error, timeout, transient-data-access
// error. Non-transient failures bypass retry").
type Transient struct {
	Cause error
}

// Error implements the error interface.
func (t *Transient) Error() string { return "transient: " + t.Cause.Error() }

// Unwrap supports errors.Is/As against the wrapped cause.
func (t *Transient) Unwrap() error { return t.Cause }

// AsTransient wraps err as a Transient error.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}

	return &Transient{Cause: err}
}

// IsTransient reports whether err (or something it wraps) is Transient.
func IsTransient(err error) bool {
	var t *Transient

	return errors.As(err, &t)
}

// RetrySettings mirrors spec.md §4.9: max_attempts=3, initial delay
// 500ms, multiplier 2.0, full-jitter optional.
type RetrySettings struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	Multiplier    float64
	FullJitter    bool
}

// DefaultRetrySettings returns the spec.md §4.9 defaults.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, Multiplier: 2.0, FullJitter: true}
}

// Retrier runs an operation with exponential backoff, retrying only
// Transient failures.
type Retrier struct {
	settings RetrySettings
	sleep    func(context.Context, time.Duration) error
}

// NewRetrier builds a Retrier with the given settings.
func NewRetrier(settings RetrySettings) *Retrier {
	return &Retrier{settings: settings, sleep: sleepCtx}
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

// Execute runs op, retrying up to MaxAttempts total attempts when op
// returns a Transient error. Non-transient errors bypass retry and return
// immediately (spec.md §4.9, §7 "Transient I/O is retried silently up to
// the retry budget").
func (r *Retrier) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	delay := r.settings.InitialDelay

	for attempt := 1; attempt <= r.settings.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsTransient(lastErr) {
			return lastErr
		}

		if attempt == r.settings.MaxAttempts {
			break
		}

		wait := delay
		if r.settings.FullJitter {
			wait = time.Duration(rand.Int63n(int64(delay) + 1))
		}

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}

		delay = time.Duration(math.Round(float64(delay) * r.settings.Multiplier))
	}

	return lastErr
}
