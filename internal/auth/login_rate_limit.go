package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"showcase-api/internal/ratelimit"
)

// LoginRateLimiter throttles the login endpoint per client address,
// independently of the per-account lockout. It rides on the same
// sliding-window limiter the API facade uses.
type LoginRateLimiter struct {
	limiter *ratelimit.Limiter
	maxHits int
	window  time.Duration
}

func NewLoginRateLimiter(limiter *ratelimit.Limiter, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		limiter: limiter,
		maxHits: maxHits,
		window:  window,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := l.limiter.Check("login:"+ClientIP(r), l.maxHits, l.window)
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the caller address, preferring the first
// X-Forwarded-For hop when present.
func ClientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
