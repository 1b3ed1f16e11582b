package finalize

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAborted means the abort predicate matched; no further attempts were made
	ErrAborted = errors.New("polling aborted")

	// ErrAttemptsExhausted means no attempt produced an acceptable result
	ErrAttemptsExhausted = errors.New("polling attempts exhausted")
)

// Policy bounds a polling loop. The values are empirical tuning knobs for
// the voice backend's finalization lag, not a guaranteed contract
type Policy struct {
	MaxAttempts  int           // Total attempts before giving up
	Interval     time.Duration // Delay between attempts
	InitialDelay time.Duration // Delay before the first attempt
}

// Poll repeatedly calls fetch until accept matches, abort matches, or
// attempts run out. Waits are scheduled against the context, never busy
// loops. Fetch errors consume an attempt and are retried
func Poll[T any](ctx context.Context, p Policy, fetch func(context.Context) (T, error), accept func(T) bool, abort func(T) bool) (T, error) {
	var zero T

	if p.MaxAttempts <= 0 {
		return zero, fmt.Errorf("policy has no attempts")
	}

	if err := sleep(ctx, p.InitialDelay); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		value, err := fetch(ctx)
		if err != nil {
			lastErr = err
		} else {
			if abort != nil && abort(value) {
				return value, ErrAborted
			}
			if accept(value) {
				return value, nil
			}
		}

		if attempt < p.MaxAttempts {
			if err := sleep(ctx, p.Interval); err != nil {
				return zero, err
			}
		}
	}

	if lastErr != nil {
		return zero, fmt.Errorf("%w: last error: %v", ErrAttemptsExhausted, lastErr)
	}
	return zero, ErrAttemptsExhausted
}

// sleep waits for the given duration or until the context is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
