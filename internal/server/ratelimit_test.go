package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one request from addr through h and returns the status code.
func hit(h http.Handler, method, path, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newTestLimiter(t *testing.T, rps float64, burst int) *rateLimiter {
	t.Helper()
	rl, stop := newRateLimiter(rps, burst)
	t.Cleanup(stop)
	return rl
}

func TestRateLimit_AllowsBurstThenRejects(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 3).middleware("ask", okHandler)

	for i := range 3 {
		if w := hit(h, http.MethodPost, "/api/ask", "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := hit(h, http.MethodPost, "/api/ask", "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestRateLimit_BucketsAreIndependent(t *testing.T) {
	t.Parallel()

	rl := newTestLimiter(t, 0.001, 1)
	ask := rl.middleware("ask", okHandler)
	ingest := rl.middleware("ingest", okHandler)

	hit(ask, http.MethodPost, "/api/ask", "192.168.1.1:1111")

	tests := []struct {
		name string
		h    http.Handler
		path string
		addr string
		want int
	}{
		{"same client same route", ask, "/api/ask", "192.168.1.1:2222", http.StatusTooManyRequests},
		{"same client other route", ingest, "/api/sessions/s1/ingest", "192.168.1.1:1111", http.StatusOK},
		{"other client same route", ask, "/api/ask", "192.168.1.2:1111", http.StatusOK},
	}
	for _, tc := range tests {
		if w := hit(tc.h, http.MethodPost, tc.path, tc.addr); w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	rl := newTestLimiter(t, 1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.allow(bucketKey{route: "ask", ip: "a"})
	now = now.Add(limiterTTL / 2)
	rl.allow(bucketKey{route: "ask", ip: "b"})
	now = now.Add(limiterTTL/2 + time.Second)

	rl.evict()
	if rl.size() != 1 {
		t.Errorf("expected only the recent bucket to survive, got %d", rl.size())
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"::1:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
