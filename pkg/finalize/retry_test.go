package finalize

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy keeps test polling waits negligible
func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Interval: time.Millisecond}
}

func TestPollAcceptsWithoutFurtherAttempts(t *testing.T) {
	responses := []string{"processing", "processing", "done"}
	calls := 0

	result, err := Poll(context.Background(), fastPolicy(6),
		func(ctx context.Context) (string, error) {
			calls++
			return responses[calls-1], nil
		},
		func(s string) bool { return s == "done" },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls, "acceptance on attempt 3 must not issue a 4th poll")
}

func TestPollAbortStopsImmediately(t *testing.T) {
	calls := 0

	_, err := Poll(context.Background(), fastPolicy(6),
		func(ctx context.Context) (string, error) {
			calls++
			return "failed", nil
		},
		func(s string) bool { return s == "done" },
		func(s string) bool { return s == "failed" },
	)

	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, calls, "abort must suppress all further attempts")
}

func TestPollExhaustion(t *testing.T) {
	calls := 0

	_, err := Poll(context.Background(), fastPolicy(6),
		func(ctx context.Context) (string, error) {
			calls++
			return "processing", nil
		},
		func(s string) bool { return s == "done" },
		nil,
	)

	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 6, calls)
}

func TestPollFetchErrorsConsumeAttempts(t *testing.T) {
	calls := 0

	_, err := Poll(context.Background(), fastPolicy(3),
		func(ctx context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("backend unreachable")
		},
		func(s string) bool { return true },
		nil,
	)

	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Contains(t, err.Error(), "backend unreachable")
	assert.Equal(t, 3, calls)
}

func TestPollRecoverAfterFetchError(t *testing.T) {
	calls := 0

	result, err := Poll(context.Background(), fastPolicy(3),
		func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("transient")
			}
			return "done", nil
		},
		func(s string) bool { return s == "done" },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 2, calls)
}

func TestPollContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Poll(ctx, Policy{MaxAttempts: 6, Interval: time.Minute, InitialDelay: time.Minute},
		func(ctx context.Context) (string, error) { return "done", nil },
		func(s string) bool { return true },
		nil,
	)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollInitialDelay(t *testing.T) {
	start := time.Now()

	_, err := Poll(context.Background(), Policy{MaxAttempts: 1, InitialDelay: 20 * time.Millisecond},
		func(ctx context.Context) (string, error) { return "done", nil },
		func(s string) bool { return true },
		nil,
	)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPollInvalidPolicy(t *testing.T) {
	_, err := Poll(context.Background(), Policy{},
		func(ctx context.Context) (string, error) { return "done", nil },
		func(s string) bool { return true },
		nil,
	)

	assert.Error(t, err)
}
