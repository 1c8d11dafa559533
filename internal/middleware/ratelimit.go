package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/metrics"
)

// Decision is the result of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// RateLimiter implements a simple in-memory rate limiter using a sliding window
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a new rate limiter. Call Close to stop its cleanup loop.
func NewRateLimiter(window time.Duration, maxReqs int) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	// Cleanup goroutine to remove old entries
	go rl.cleanup()

	return rl
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	// Remove requests outside the window
	reqs := rl.requests[key]
	filtered := make([]time.Time, 0, len(reqs)+1)
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= rl.maxReqs {
		rl.requests[key] = filtered
		return Decision{
			Limit:      rl.maxReqs,
			RetryAfter: filtered[0].Add(rl.window).Sub(now),
		}
	}

	filtered = append(filtered, now)
	rl.requests[key] = filtered
	return Decision{Allowed: true, Limit: rl.maxReqs, Remaining: rl.maxReqs - len(filtered)}
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanup periodically removes old entries to prevent memory leaks
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		cutoff := rl.now().Add(-rl.window * 2) // Keep entries for 2x window
		for key, reqs := range rl.requests {
			if len(reqs) == 0 || !reqs[len(reqs)-1].After(cutoff) {
				delete(rl.requests, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RedisRateLimiter is a fixed-window counter shared across instances.
// Redis errors fail open.
type RedisRateLimiter struct {
	rdb     *redis.Client
	prefix  string
	window  time.Duration
	maxReqs int
	logger  *zap.Logger
}

// NewRedisRateLimiter creates a limiter that allows maxReqs per window for each key.
// Keys are stored as "<prefix>:<key>".
func NewRedisRateLimiter(rdb *redis.Client, prefix string, window time.Duration, maxReqs int, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, prefix: strings.TrimSuffix(prefix, ":"), window: window, maxReqs: maxReqs, logger: logger}
}

// Allow increments the key's counter, starting the window on the first hit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) Decision {
	k := l.prefix + ":" + key

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		// Fail open → don't block traffic if Redis unavailable
		l.logger.Warn("rate limiter unavailable", zap.Error(err))
		return Decision{Allowed: true, Limit: l.maxReqs, Remaining: l.maxReqs}
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			l.logger.Warn("rate limiter expire failed", zap.Error(err))
		}
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	if count > int64(l.maxReqs) {
		return Decision{Limit: l.maxReqs, RetryAfter: ttl}
	}
	return Decision{Allowed: true, Limit: l.maxReqs, Remaining: l.maxReqs - int(count), RetryAfter: ttl}
}

// RateLimit rejects requests over the limiter's budget with 429.
func RateLimit(limiter Limiter, name, message string, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Allow(r.Context(), keyFunc(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int(d.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				metrics.RateLimited.WithLabelValues(name).Inc()
				respondWithError(w, http.StatusTooManyRequests, message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIPKey extracts IP address from request for rate limiting
func GetIPKey(r *http.Request) string {
	// Try X-Forwarded-For first (for proxies), first hop only
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return "ip:" + strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return "ip:" + r.RemoteAddr
}
