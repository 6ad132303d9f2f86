package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy is an explicit retry contract. A nil MaxAttempts genuinely means
// unbounded; callers that need scheduling beyond process lifetime go through
// the outbox publish_after queue instead.
type Policy struct {
	MaxAttempts *uint64
	BaseDelay   time.Duration
	Jitter      time.Duration
	// Exponential switches from constant spacing to fibonacci backoff.
	Exponential bool
}

// Contention is the policy applied to database integrity races during
// reference creation. Expected benign contention, bounded and fixed-spaced.
func Contention(maxAttempts int, delay time.Duration) Policy {
	attempts := uint64(maxAttempts)
	return Policy{
		MaxAttempts: &attempts,
		BaseDelay:   delay,
	}
}

// Backoff builds the go-retry backoff chain for this policy.
func (p Policy) Backoff() retry.Backoff {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var b retry.Backoff
	if p.Exponential {
		b = retry.NewFibonacci(delay)
	} else {
		b = retry.NewConstant(delay)
	}
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	if p.MaxAttempts != nil {
		// go-retry counts retries, not attempts.
		maxRetries := *p.MaxAttempts
		if maxRetries > 0 {
			maxRetries--
		}
		b = retry.WithMaxRetries(maxRetries, b)
	}
	return b
}

// Do runs fn under the policy. fn must wrap retryable failures with
// Retryable; any other error stops immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.Backoff(), fn)
}

// Retryable marks err as retryable for Do.
func Retryable(err error) error {
	return retry.RetryableError(err)
}
