// Package retry runs an operation again after transient failures, waiting an
// exponentially growing delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures how often and how patiently an operation is retried.
// The zero value performs a single attempt.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between two attempts.
	MaxBackoff time.Duration

	// Multiplier grows the wait after every retry. Values below 1 are treated as 2.
	Multiplier float64
}

// Backoff returns the wait before retry number attempt (1-indexed).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	wait := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= multiplier
		if p.MaxBackoff > 0 && wait >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(wait) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(wait)
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it immediately. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// NotifyFunc is called before each retry with the 1-indexed attempt number, the error
// that triggered it and the wait about to be applied.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns a Permanent error, the retries are exhausted
// or ctx is done. Context errors are never retried.
func Do(ctx context.Context, p Policy, notify NotifyFunc, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := p.Backoff(attempt)
			if notify != nil {
				notify(attempt, err, wait)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context done while retrying: %w", errors.Join(ctx.Err(), err))
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= p.MaxRetries {
			if p.MaxRetries == 0 {
				return err
			}
			return fmt.Errorf("giving up after %d retries: %w", p.MaxRetries, err)
		}
	}
}
