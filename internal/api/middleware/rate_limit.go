package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "tasker/internal/pkg/errors"
)

var errRateLimited = apperrors.New(apperrors.KindRateLimited, "Too many requests, please try again later")

// RateLimiter is a per-key token bucket refilled continuously over a minute.
type RateLimiter struct {
	store sync.Map // map[string]*bucket
	now   func() time.Time
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now}
}

// Run evicts idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict(idle)
		}
	}
}

func (rl *RateLimiter) evict(idle time.Duration) {
	now := rl.now()
	rl.store.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastAccess) > idle {
			rl.store.Delete(key)
		}
		b.mu.Unlock()
		return true
	})
}

// Allow takes one token from key's bucket of perMinute capacity.
func (rl *RateLimiter) Allow(key string, perMinute int) bool {
	now := rl.now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		tokens:     float64(perMinute),
		lastRefill: now,
		lastAccess: now,
	})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now
	elapsed := now.Sub(b.lastRefill)
	b.tokens = min(float64(perMinute), b.tokens+elapsed.Minutes()*float64(perMinute))
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limit guards a route group by client IP.
func (rl *RateLimiter) Limit(group string, perMinute int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if perMinute <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)+":"+group, perMinute) {
				w.Header().Set("Retry-After", strconv.Itoa(60/perMinute+1))
				apperrors.WriteError(w, errRateLimited)
				return
			}
			next(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
