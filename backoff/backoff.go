// Package backoff computes retry delays: exponential growth capped at a
// ceiling, plus uniform jitter so concurrent retriers don't synchronize.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before retry number attempt (1-indexed):
// min(cap, base^(attempt-1)) seconds plus a uniform draw from [0, jitter).
// A zero or negative jitter disables the random component, making the
// result a pure function of (attempt, base, cap).
func Delay(attempt int, base, cap float64, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := math.Min(cap, math.Pow(base, float64(attempt-1)))
	d := time.Duration(delay * float64(time.Second))
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	return d
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
