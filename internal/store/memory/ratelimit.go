package memory

import (
	"context"
	"sync"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// RateLimiter is an in-process sliding window limiter. It keeps request
// timestamps per key and prunes expired ones on each call.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string][]time.Time)}
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.windows[key][:0]
	for _, ts := range rl.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		rl.windows[key] = kept
		return false, nil
	}
	rl.windows[key] = append(kept, now)
	return true, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
