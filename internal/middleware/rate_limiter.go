package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter is a token bucket per key held in process memory. It suits single replica
// deployments; RedisRateLimiter covers the shared case.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	lastGC  time.Time
	now     func() time.Time
}

// NewIPRateLimiter refills requests tokens per window, holds at most burst of them, and forgets
// keys idle for longer than ttl.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *IPRateLimiter {
	requests = max(requests, 1)
	burst = max(burst, 1)
	if window <= 0 {
		window = time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &IPRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow spends one token from key's bucket.
func (l *IPRateLimiter) Allow(_ context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.lastGC.IsZero() {
		l.lastGC = now
	}
	// Idle buckets are swept at most once per ttl.
	if now.Sub(l.lastGC) >= l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns how many keys are currently tracked.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// WithNowFunc allows tests to override the time source.
func (l *IPRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
