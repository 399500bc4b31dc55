package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A bucket refills limit tokens per window and allows bursts up to limit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*limiterEntry
	idle    time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. Buckets unused for idle are dropped.
func NewRateLimiter(idle time.Duration) *RateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		buckets: make(map[string]*limiterEntry),
		idle:    idle,
		now:     time.Now,
	}
}

// Allow consumes one token from key's bucket.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.buckets[key]
	if !ok || e.limit != limit || e.window != window {
		every := window / time.Duration(limit)
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(every), limit),
			limit:   limit,
			window:  window,
		}
		r.buckets[key] = e
	}
	e.lastSeen = now
	r.sweep(now)
	return e.limiter.AllowN(now, 1), nil
}

func (r *RateLimiter) sweep(now time.Time) {
	for k, e := range r.buckets {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.buckets, k)
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
