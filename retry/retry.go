// Package retry provides the backoff arithmetic shared by the websocket
// reconnect scheduler and the HTTP client. It is pure: the random source is
// injectable and no I/O happens here.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule with symmetric jitter.
type Policy struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// MaxRetries is the number of retries attempted before giving up.
	MaxRetries int

	// JitterFraction spreads each delay by ±fraction of its computed
	// value, so simultaneously-disconnected clients do not resonate.
	// Zero means no jitter.
	JitterFraction float64

	// Rand returns a value in [0, 1). Defaults to math/rand.Float64.
	Rand func() float64
}

// Default is the policy used when the caller configures nothing.
var Default = Policy{
	InitialDelay:   time.Second,
	MaxDelay:       30 * time.Second,
	MaxRetries:     10,
	JitterFraction: 0.25,
}

// IsZero reports whether the policy is unconfigured.
func (p Policy) IsZero() bool {
	return p.InitialDelay == 0 && p.MaxDelay == 0 && p.MaxRetries == 0 &&
		p.JitterFraction == 0 && p.Rand == nil
}

// Delay returns the wait before retry attempt n (0-indexed):
// min(InitialDelay * 2^n, MaxDelay) plus symmetric jitter.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.InitialDelay
	for i := 0; i < attempt; i++ {
		base *= 2
		if base >= p.MaxDelay || base < 0 {
			base = p.MaxDelay
			break
		}
	}
	if base > p.MaxDelay {
		base = p.MaxDelay
	}

	if p.JitterFraction <= 0 {
		return base
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	// Jitter in [-fraction, +fraction] of the base delay.
	jitter := time.Duration((2*random() - 1) * p.JitterFraction * float64(base))
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return d
}

// Permanent wraps an error that a retry cannot fix; Do returns it
// (unwrapped) without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs fn until it succeeds, returns a Permanent error, exhausts the
// policy's retries, or ctx is done. The last error is returned on
// exhaustion.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= p.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
}
