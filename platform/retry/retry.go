// Package retry runs operations against flaky collaborators with bounded backoff.
// This is part of the platform layer and contains no business logic.
package retry

import (
	"context"
	"errors"
	"time"
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the inner error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn up to attempts times. The wait before attempt n+1 is
// baseDelay*n*n. It stops early on a Permanent error or when ctx is done, and
// returns the last error seen.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt*attempt) * baseDelay
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}
