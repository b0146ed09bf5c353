// Package retry runs an operation a bounded number of times with linear backoff.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop. The wait after attempt n is Backoff*n.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration

	// ShouldRetry decides whether a failed attempt may be repeated. Nil retries every error.
	ShouldRetry func(error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts
// run out. It reports how many attempts were made and the last error. A canceled
// ctx stops the loop between attempts; an attempt already running is not interrupted.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			return attempt, err
		}

		timer := time.NewTimer(p.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
	return maxAttempts, err
}
