// Package retry provides the retry strategy used for uploads and identity checks.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values below 1 mean 1.
	MaxAttempts int
	// Delay returns the wait before the given retry (1 = wait after the first failure).
	Delay func(retry int) time.Duration
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       func(int) time.Duration { return delay },
	}
}

// Immediate returns a policy that retries without waiting.
func Immediate(attempts int) Policy {
	return Fixed(attempts, 0)
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// fn receives the 1-based attempt number. The returned count is the number of
// attempts made; on exhaustion the error of the last attempt is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	retries := 0
	var backoff goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) {
		retries++
		if p.Delay == nil {
			return 0, false
		}
		return p.Delay(retries), false
	})
	backoff = goretry.WithMaxRetries(uint64(maxAttempts-1), backoff) //nolint:gosec // maxAttempts >= 1

	attempts := 0
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := fn(ctx, attempts); err != nil {
			return goretry.RetryableError(err)
		}
		return nil
	})

	return attempts, err
}
