package consumer

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff produces capped exponential delays with jitter for retrying
// transient bus and store failures. Zero values fall back to sane defaults.
type Backoff struct {
	// Base is the first delay. Default 1s.
	Base time.Duration

	// Max caps the delay growth. Default 30s.
	Max time.Duration

	attempt int
}

// Next returns the delay for the current attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := float64(base) * math.Pow(2, float64(b.attempt))
	if delay > float64(max) {
		delay = float64(max)
	}

	// Jitter within ±10% to avoid synchronized retries.
	jitter := (rand.Float64()*0.2 - 0.1) * delay
	delay += jitter
	if delay < float64(base) {
		delay = float64(base)
	}

	b.attempt++
	return time.Duration(delay)
}

// Reset restarts the sequence after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Wait sleeps for the next delay or returns early when ctx is cancelled.
func (b *Backoff) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.Next()):
		return nil
	}
}
