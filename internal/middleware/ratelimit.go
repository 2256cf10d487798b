package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// VisitorLimiter keeps one token bucket per visitor key.
type VisitorLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	visitors map[string]*visitorBucket
}

type visitorBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewVisitorLimiter creates a limiter allowing rps requests per second with
// the given burst per key. Keys unseen for idle are evicted until ctx ends.
func NewVisitorLimiter(ctx context.Context, rps float64, burst int, idle time.Duration) *VisitorLimiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &VisitorLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		visitors: make(map[string]*visitorBucket),
	}
	go l.evictLoop(ctx)
	return l
}

// Allow reports whether key may proceed now. A non-positive rate allows everything.
func (l *VisitorLimiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.visitors[key]
	if !ok {
		b = &visitorBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *VisitorLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *VisitorLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evict(time.Now().Add(-l.idle))
		case <-ctx.Done():
			return
		}
	}
}

func (l *VisitorLimiter) evict(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.visitors {
		if b.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429. keyFn picks the
// visitor key for a request.
func RateLimit(l *VisitorLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFn(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
