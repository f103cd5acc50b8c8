package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/grievancegenie/platform/internal/shared/auth"
)

// idleTTL is how long a caller's bucket survives without requests. A bucket
// idle that long has refilled, so dropping it does not change any decision.
const idleTTL = 10 * time.Minute

// KeyRateLimiter keeps one token bucket per caller. The caller key is the
// authenticated actor when present, otherwise the client IP. Buckets idle
// for idleTTL are evicted.
type KeyRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*callerLimiter
	rate      rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewKeyRateLimiter(rps int, burst int) *KeyRateLimiter {
	return &KeyRateLimiter{
		limiters:  make(map[string]*callerLimiter),
		rate:      rate.Limit(rps),
		burst:     burst,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// GetLimiter returns the limiter for key, creating it on first use.
func (l *KeyRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= idleTTL {
		l.evictIdle(now)
	}

	entry, exists := l.limiters[key]
	if !exists {
		entry = &callerLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// evictIdle drops buckets not used since now-idleTTL. Caller holds mu.
func (l *KeyRateLimiter) evictIdle(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked callers.
func (l *KeyRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *KeyRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.GetLimiter(callerKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if u := auth.GetUser(r.Context()); u != nil {
		return "actor:" + u.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP extracts the client IP from request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
