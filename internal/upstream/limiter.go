package upstream

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls at least interval apart across goroutines.
type RateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

// NewRateLimiter returns a limiter that admits one call per interval.
// A non-positive interval admits every call immediately.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval < 0 {
		interval = 0
	}
	return &RateLimiter{interval: interval}
}

// WaitTurn blocks until the caller's slot arrives or ctx is done.
func (r *RateLimiter) WaitTurn(ctx context.Context) error {
	if r == nil || r.interval == 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	now := time.Now()
	scheduled := now
	if r.nextAllowedAt.After(now) {
		scheduled = r.nextAllowedAt
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	r.mu.Unlock()

	sleep := time.Until(scheduled)
	if sleep <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
