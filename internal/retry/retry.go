// Package retry retries transient failures: capped exponential backoff for
// calls to a remote monitor and fixed-interval polling for a store that is
// still starting up.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Backoff.Do and Poll return it immediately.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) (error, bool) {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err, true
	}
	return err, false
}

// Backoff is a retry policy. The delay before retry n is Initial*2^(n-1),
// capped at Max, with up to a quarter of it randomly shaved off so that
// clients restarted together do not retry in lockstep.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff suits a JSON-RPC call to a monitor on the same network.
var DefaultBackoff = Backoff{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}

// Delay returns the un-jittered wait before retry n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || b.Initial <= 0 {
		return 0
	}
	d := b.Initial
	for i := 1; i < n; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a Permanent error, or Attempts
// calls have failed. The last error is returned unwrapped.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	attempts := max(b.Attempts, 1)

	var err error
	for n := 1; ; n++ {
		err = fn()
		if err == nil {
			return nil
		}
		if inner, ok := unwrapPermanent(err); ok {
			return inner
		}
		if n == attempts {
			return err
		}
		if werr := wait(ctx, jitter(b.Delay(n))); werr != nil {
			return werr
		}
	}
}

// Poll calls fn every interval until it succeeds, returns a Permanent
// error, or timeout elapses. On timeout the last error from fn is returned
// so callers can report why the dependency never came up.
func Poll(ctx context.Context, timeout, interval time.Duration, fn func() error) error {
	deadline := time.Now().Add(timeout)

	for {
		err := fn()
		if err == nil {
			return nil
		}
		if inner, ok := unwrapPermanent(err); ok {
			return inner
		}
		if time.Until(deadline) < interval {
			return err
		}
		if werr := wait(ctx, interval); werr != nil {
			return werr
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d - rand.N(d/4+1)
}

func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
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
