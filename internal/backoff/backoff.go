// Package backoff provides jittered retry delays for installation attempts.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy is a list of delays in milliseconds, one per retry. Retries beyond the
// end of the list reuse the last entry.
type Policy struct {
	Millis []int
}

var (
	// Install is the default policy between installation attempts.
	Install = Policy{Millis: []int{500, 1000, 2000}}

	// Default is used when no policy is configured.
	Default = Install
)

// FromMillis builds a policy from configured delays, falling back to Default when empty.
func FromMillis(ms []int) Policy {
	if len(ms) == 0 {
		return Default
	}
	return Policy{Millis: append([]int(nil), ms...)}
}

// Duration returns the jittered delay for retry n, counting from zero.
func (p Policy) Duration(n int) time.Duration {
	if len(p.Millis) == 0 {
		return 0
	}
	if n < 0 {
		n = 0
	}
	if n >= len(p.Millis) {
		n = len(p.Millis) - 1
	}

	return time.Duration(jitter(p.Millis[n])) * time.Millisecond
}

// TrySleep sleeps for the delay of retry n.
func (p Policy) TrySleep(ctx context.Context, n int) error {
	return p.Sleep(ctx, p.Duration(n))
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func (p Policy) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// For calls cb until it returns nil or an error wrapped with Permanent, or ctx
// is done, sleeping between tries. try starts at 1. A Permanent error is
// returned unwrapped.
func (p Policy) For(ctx context.Context, cb func(try int) error) error {
	for try := 1; ; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := cb(try)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if err := p.TrySleep(ctx, try-1); err != nil {
			return err
		}
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// String renders the policy for logs.
func (p Policy) String() string {
	return fmt.Sprintf("backoff%v", p.Millis)
}

// jitter returns a value in [0.5*ms, 1.5*ms].
func jitter(ms int) int {
	if ms <= 0 {
		return 0
	}
	half := ms / 2
	return half + rand.IntN(ms+1)
}
