package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Retry is the delivery schedule shared by adapters: one attempt plus
// Retries more, waiting Backoff before the first retry and doubling after.
type Retry struct {
	Retries int
	Backoff time.Duration
}

// Attempts returns the total number of sends the schedule allows.
func (r Retry) Attempts() int { return 1 + max(r.Retries, 0) }

// wait returns the pause before attempt n (0-based).
func (r Retry) wait(n int) time.Duration {
	if n == 0 {
		return 0
	}
	return r.Backoff << (n - 1)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Deliver stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Deliver calls send until it succeeds, returns a Permanent error, the
// schedule runs out, or ctx ends.
func Deliver(ctx context.Context, r Retry, send func(context.Context) error) error {
	var last error
	attempts := r.Attempts()
	for n := range attempts {
		if d := r.wait(n); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("delivery canceled after %d attempts: %w", n, ctx.Err())
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("delivery canceled: %w", err)
		}

		last = send(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, last)
}
