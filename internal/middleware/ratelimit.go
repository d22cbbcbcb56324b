package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sets a token bucket per client: Requests tokens refill
// evenly over Window, and at most Burst can be spent at once.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// limiterIdleSweep is how often buckets that have refilled completely are
// dropped.
const limiterIdleSweep = 5 * time.Minute

type rateLimiter struct {
	limiters sync.Map // client key → *rate.Limiter
	limit    rate.Limit
	burst    int

	mu        sync.Mutex
	lastSweep time.Time
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	if l, ok := rl.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.limit, rl.burst))
	rl.maybeSweep()
	return l.(*rate.Limiter)
}

// maybeSweep forgets limiters whose bucket is full again; a full bucket
// behaves exactly like a fresh one.
func (rl *rateLimiter) maybeSweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastSweep) < limiterIdleSweep {
		return
	}
	rl.lastSweep = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// clientIP is the host part of RemoteAddr. chi's RealIP middleware, mounted
// ahead of this one, has already replaced RemoteAddr with the
// X-Forwarded-For / X-Real-IP value when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitByIP returns middleware that answers 429 Too Many Requests, with
// a Retry-After header, once a client IP has spent its tokens.
func RateLimitByIP(cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	rl := &rateLimiter{
		limit:     rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			limiter := rl.get(key)

			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			// Ask when the next token arrives without keeping the reservation.
			res := limiter.Reserve()
			retryAfter := max(int(res.Delay().Seconds()), 1)
			res.Cancel()

			logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
				slog.Int("retry_after", retryAfter),
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
		})
	}
}
