package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Rate            float64                                      // requests per second
	Burst           int                                          // max burst
	KeyFunc         func(r *http.Request) string                 // default: remote IP
	OnLimit         func(w http.ResponseWriter, r *http.Request) // default: 429 response
	CleanupInterval time.Duration                                // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration                                // remove limiters idle longer than this (default: 5m)
}

func (cfg *RateLimitConfig) fill() {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = remoteIP
	}
	if cfg.OnLimit == nil {
		cfg.OnLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5 * time.Minute
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit returns middleware that applies per-key token-bucket limiting
// in front of the pipeline.
func RateLimit(cfg RateLimitConfig) Middleware {
	cfg.fill()

	var (
		mu          sync.Mutex
		limiters    = make(map[string]*limiterEntry)
		lastCleanup time.Time
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)

			mu.Lock()
			now := time.Now()

			// Lazy pruning of idle limiters.
			if now.Sub(lastCleanup) >= cfg.CleanupInterval {
				for k, e := range limiters {
					if now.Sub(e.lastSeen) > cfg.MaxIdle {
						delete(limiters, k)
					}
				}
				lastCleanup = now
			}

			entry, ok := limiters[key]
			if !ok {
				entry = &limiterEntry{
					limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
				}
				limiters[key] = entry
			}
			entry.lastSeen = now
			mu.Unlock()

			if !entry.limiter.Allow() {
				retryAfter := strconv.FormatFloat(1/cfg.Rate, 'f', 0, 64)
				w.Header().Set("Retry-After", retryAfter)
				cfg.OnLimit(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}
