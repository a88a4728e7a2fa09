package tool

import (
	"sync"
	"time"
)

// window is one fixed rate-limit window for a (tool, caller) pair.
type window struct {
	count   int
	resetAt time.Time
}

// rateLimiter tracks fixed-window call counts keyed by tool name and
// caller key. Windows are created lazily on first call and replaced, not
// slid, once their reset time passes.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[limitKey]*window
	now     func() time.Time
}

type limitKey struct {
	tool   string
	caller string
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		windows: make(map[limitKey]*window),
		now:     time.Now,
	}
}

// allow records one call attempt against the limit and reports whether it
// fits in the current window. Rejected calls do not consume quota. The
// returned time is when the current window resets and is only meaningful on
// rejection.
func (r *rateLimiter) allow(tool, caller string, limit RateLimit) (bool, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := limitKey{tool: tool, caller: caller}
	w, ok := r.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(time.Duration(limit.WindowMs) * time.Millisecond)}
		r.windows[key] = w
	}
	if w.count >= limit.MaxCalls {
		return false, w.resetAt
	}
	w.count++
	return true, w.resetAt
}

// sweep drops windows whose reset time has passed. Called periodically so
// the map does not grow with one entry per caller forever.
func (r *rateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, w := range r.windows {
		if now.After(w.resetAt) {
			delete(r.windows, key)
		}
	}
}
