package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy is a bounded attempt loop with constant backoff between
// attempts. Every error is retryable; the caller decides what to do with the
// final one.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration

	// Sleep is replaceable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

// Run executes attempt until it succeeds or the ceiling is hit, returning
// the last error.
func (p RetryPolicy) Run(ctx context.Context, attempt func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		log.Warn().
			Int("attempt", n).
			Int("max_attempts", maxAttempts).
			Err(lastErr).
			Msg("turn attempt failed")
		if n < maxAttempts && p.Backoff > 0 {
			sleep(p.Backoff)
		}
	}
	return lastErr
}
