package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket: capacity `burst` tokens, refilled at a fixed
// per-minute rate. A full bucket lets a short run of calls proceed at once
// while the sustained rate stays bounded.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a RateLimiter allowing perMinute operations per
// minute with the given burst capacity. The bucket starts full. A burst below
// 1 is raised to 1.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled. When
// the bucket is empty it sleeps for the exact refill deficit rather than
// polling.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
		rl.last = now

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Second
		if rl.rate > 0 {
			wait = time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
