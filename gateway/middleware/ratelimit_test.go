package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sweep": {RequestsPerMinute: 60, Burst: 2},
	}, nil)
	handler := limiter.Middleware("sweep")(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sweep": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	handler := limiter.Middleware("sweep")(okHandler())

	first := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client should pass, got %d", rec.Code)
	}

	second := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
	second.RemoteAddr = "10.0.0.2:1000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client should have its own budget, got %d", rec.Code)
	}
}

func TestRateLimiterPassesUnknownRoute(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{}, nil)
	handler := limiter.Middleware("unknown")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unlimited route should pass, got %d", rec.Code)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"sweep": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.nowFn = func() time.Time { return now }
	handler := limiter.Middleware("sweep")(okHandler())

	req := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked visitor, got %d", len(limiter.visitors))
	}

	now = now.Add(visitorIdleTTL + time.Minute)
	other := httptest.NewRequest("POST", "/accounts/aa/sweep", nil)
	other.RemoteAddr = "10.0.0.2:1000"
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if len(limiter.visitors) != 1 {
		t.Fatalf("idle visitor should be evicted, got %d tracked", len(limiter.visitors))
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.9" {
		t.Fatalf("unexpected client id: %s", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := clientID(req); got != "198.51.100.7" {
		t.Fatalf("X-Real-IP should win, got %s", got)
	}
}
