package limits

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitMessage is shown when a creation is throttled.
const RateLimitMessage = "Too many pipelines created in the last minute. Try again later."

// Key identifies who creates a pipeline for which commit.
type Key struct {
	Project string
	User    string
	SHA     string
}

// RateLimiter decides whether another pipeline may be created for key. It
// counts the attempt when it allows it.
type RateLimiter interface {
	Allow(ctx context.Context, key Key) (bool, error)
}

// MemoryRateLimiter is a token bucket per key. A bucket idle for a whole
// window is full again and is dropped.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	limiters  map[Key]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateLimiter allows count creations per window for each key.
func NewMemoryRateLimiter(count int, window time.Duration) *MemoryRateLimiter {
	if count < 1 {
		count = 1
	}
	return &MemoryRateLimiter{
		limit:    rate.Every(window / time.Duration(count)),
		burst:    count,
		window:   window,
		limiters: map[Key]*bucket{},
		now:      time.Now,
	}
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// Allow implements RateLimiter.
func (l *MemoryRateLimiter) Allow(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	now := l.now()
	l.sweep(now)
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1), nil
}

// Len returns the number of keys being tracked.
func (l *MemoryRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep drops idle buckets at most once per window. l.mu must be held.
func (l *MemoryRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.limiters, key)
		}
	}
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow implements RateLimiter.
func (Unlimited) Allow(context.Context, Key) (bool, error) { return true, nil }
