package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/studyai-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-client request rate (req/s) on
	// rate-limited routes when none is configured.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when none is configured.
	defaultRateBurst = 20
	// limiterTTL is how long an idle bucket is kept.
	limiterTTL = 5 * time.Minute
	// evictInterval is how often idle buckets are swept.
	evictInterval = time.Minute
)

// bucketKey identifies one token bucket: a route class and a client IP.
// Ask and ingest traffic from the same client never share a bucket.
type bucketKey struct {
	route string
	ip    string
}

// bucket is a token bucket and the last time it was used.
type bucket struct {
	// limiter is the token bucket.
	limiter *rate.Limiter
	// lastSeen drives idle eviction.
	lastSeen time.Time
}

// rateLimiter enforces per-client token buckets on the expensive routes.
type rateLimiter struct {
	// mu protects buckets.
	mu sync.Mutex
	// buckets maps route and client to its bucket.
	buckets map[bucketKey]*bucket
	// rps is the sustained rate of a new bucket.
	rps rate.Limit
	// burst is the capacity of a new bucket.
	burst int
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// newRateLimiter constructs a rateLimiter and starts its eviction loop. The
// returned stop function ends the loop.
func newRateLimiter(rps float64, burst int) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[bucketKey]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// allow takes a token from the bucket for key, creating it on first use.
func (rl *rateLimiter) allow(key bucketKey) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	rl.mu.Unlock()
	return b.limiter.Allow()
}

// evict drops buckets idle for longer than limiterTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// size returns the number of live buckets.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware limits next under the given route class. Rejected requests get
// 429 with Retry-After.
func (rl *rateLimiter) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bucketKey{route: route, ip: clientIP(r)}
		if !rl.allow(key) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("route", route),
				slog.String("ip", key.ip),
				slog.String("session", r.PathValue("session")),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote IP without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
