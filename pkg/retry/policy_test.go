package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoStopsAtMaxAttempts(t *testing.T) {
	policy := Contention(3, time.Millisecond)

	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		return Retryable(errors.New("still failing"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	policy := Contention(5, time.Millisecond)

	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	policy := Contention(5, time.Millisecond)
	fatal := errors.New("bad input")

	attempts := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		attempts++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts, "non-retryable failures stop immediately")
}

func TestDoHonorsContextCancellation(t *testing.T) {
	policy := Contention(100, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := policy.Do(ctx, func(context.Context) error {
		return Retryable(errors.New("transient"))
	})

	require.Error(t, err)
}

func TestBackoffDefaultsBaseDelay(t *testing.T) {
	policy := Policy{}
	assert.NotNil(t, policy.Backoff())
}
