package api

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Each client IP owns a token bucket. Buckets idle past bucketTTL are
// swept during lookups so the map stays bounded without a background
// goroutine.
const (
	bucketSweepEvery = 3 * time.Minute
	bucketTTL        = 15 * time.Minute
)

// rateLimiter enforces a per-IP request rate using golang.org/x/time/rate.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	nextSweep time.Time
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter refilling perSecond tokens up to burst.
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		nextSweep: time.Now().Add(bucketSweepEvery),
	}
}

// allow reports whether a request from ip may proceed, consuming a token.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// sweep drops buckets not seen for bucketTTL. Caller holds mu.
func (rl *rateLimiter) sweep(now time.Time) {
	if now.Before(rl.nextSweep) {
		return
	}
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > bucketTTL {
			delete(rl.buckets, ip)
		}
	}
	rl.nextSweep = now.Add(bucketSweepEvery)
}

// rateLimitMiddleware rejects requests from IPs that exhausted their bucket
// with 429 and a Retry-After hint.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if rl.allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("rate limit exceeded",
				"ip", ip,
				"method", r.Method,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		})
	}
}

// clientIP picks the bucket key for a request.
//
// Proxy headers (X-Real-IP, then the first X-Forwarded-For entry) are
// honored only when trustProxy is set, and only when they parse as an
// address, so arbitrary header values cannot mint fresh buckets. Otherwise
// the key is the connection's remote address.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, raw := range []string{r.Header.Get("X-Real-IP"), forwardedClient(r)} {
			if addr, err := netip.ParseAddr(strings.TrimSpace(raw)); err == nil {
				return addr.String()
			}
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().String()
	}
	return r.RemoteAddr
}

// forwardedClient returns the leftmost X-Forwarded-For entry, which is the
// client as seen by the first proxy.
func forwardedClient(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if first, _, ok := strings.Cut(xff, ","); ok {
		return first
	}
	return xff
}
