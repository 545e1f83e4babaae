package ingress

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window request counter, guarded by a single lock
// held only for the compare-reset-increment sequence (SPEC_FULL.md §5).
// This is deliberately not a token bucket: the wire contract's P6/scenario
// 5 call for bursty fixed-window behavior (up to 2x the nominal rate at a
// window boundary), which a smoothing limiter like golang.org/x/time/rate
// would not reproduce.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	windowStart time.Time
	count       int
	now         func() time.Time
}

// NewRateLimiter builds a limiter admitting up to limit requests per
// fixed 1-second window.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{limit: limit, now: time.Now}
}

// Allow reports whether the current request fits within this window's
// budget, resetting the window first if it has elapsed.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.windowStart) >= time.Second {
		r.windowStart = now
		r.count = 0
	}
	if r.count >= r.limit {
		return false
	}
	r.count++
	return true
}
