package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// RateLimit limits each client IP to perSec requests with the given burst.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = max(1, int(perSec))
	}
	var (
		mu       sync.Mutex
		limiters = make(map[string]*visitor)
		lastGC   time.Time
	)
	get := func(ip string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(lastGC) > limiterIdle {
			for k, v := range limiters {
				if now.Sub(v.seen) > limiterIdle {
					delete(limiters, k)
				}
			}
			lastGC = now
		}
		v, ok := limiters[ip]
		if !ok {
			v = &visitor{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
			limiters[ip] = v
		}
		v.seen = now
		return v.lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !get(clientIP(r), time.Now()).Allow() {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientIP prefers X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
