// Package retry implements the exponential-backoff-with-jitter helper used
// by every supervised loop (poller pagination failures, streamer
// reconnects, Redis publisher reconnects) instead of each component
// hand-rolling its own sleep math.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes successive delays for a capped exponential sequence with
// jitter, mirroring the reconnect loop idiom used throughout the codebase
// (start small, double, cap, add up to jitterFraction of random slack).
type Backoff struct {
	Min           time.Duration
	Max           time.Duration
	JitterFrac    float64 // e.g. 0.1 for 10% jitter
	attempt       int
	consecFailure int
}

func New(min, max time.Duration, jitterFrac float64) *Backoff {
	return &Backoff{Min: min, Max: max, JitterFrac: jitterFrac}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := b.Min << b.attempt
	if d <= 0 || d > b.Max {
		d = b.Max
	} else {
		b.attempt++
	}
	if b.JitterFrac > 0 {
		jitter := time.Duration(rand.Int63n(int64(float64(d) * b.JitterFrac)))
		d += jitter
	}
	b.consecFailure++
	return d
}

// Reset clears the attempt counter after a successful operation.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.consecFailure = 0
}

// ConsecutiveFailures returns the number of Next() calls since the last Reset.
func (b *Backoff) ConsecutiveFailures() int {
	return b.consecFailure
}

// Sleep waits for the computed delay or until ctx is cancelled, whichever
// comes first. Returns ctx.Err() if cancelled.
func (b *Backoff) Sleep(ctx context.Context) error {
	d := b.Next()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
