package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key. A bucket holds max tokens and refills
// over window.
type RateLimiter struct {
	name   string
	max    int
	window time.Duration

	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(name string, max int, window time.Duration) *RateLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		name:     name,
		max:      max,
		window:   window,
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(max) / window.Seconds()),
		idleTTL:  window,
		now:      time.Now,
	}
}

// Allow takes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.idleTTL {
		rl.sweep(now)
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.max)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than a window; they would be full again anyway.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
	rl.lastSweep = now
}

func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(rl.window.Seconds() / float64(rl.max)))
}

// rateLimitByIP answers 429 RATE_LIMIT_EXCEEDED once a client IP runs out of tokens.
func rateLimitByIP(limiter *RateLimiter, responder Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.max))
			if !limiter.Allow(clientIP(r)) {
				metrics.RateLimitedTotal.WithLabelValues(limiter.name).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
				responder.WriteError(w, errs.NewRateLimitError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
