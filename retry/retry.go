// Package retry runs an operation with exponential backoff.
//
// The policy is independent of any transport: callers supply a classifier
// that decides which errors are worth another attempt.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// DefaultBaseDelay is the wait before the first retry.
const DefaultBaseDelay = time.Second

// Policy describes how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles per attempt.
	BaseDelay time.Duration
	// Jitter randomizes each delay by up to ±Jitter (0..1) of its length.
	Jitter float64
	// Retryable reports whether err warrants another attempt. When nil every
	// error is retried.
	Retryable func(error) bool
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Delay returns the backoff before retry number attempt (0-based):
// BaseDelay * 2^attempt, before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := base << uint(attempt)
	if d <= 0 {
		return base
	}
	return d
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	span := float64(d) * p.Jitter
	return d + time.Duration((rand.Float64()*2-1)*span)
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// is cancelled, or MaxRetries retries have been used. attempt starts at 0.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		delay := p.jittered(p.Delay(attempt))
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return &ExhaustedError{Attempts: maxRetries + 1, Last: err}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
