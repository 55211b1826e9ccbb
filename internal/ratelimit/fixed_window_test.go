package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, srv *miniredis.Miniredis, limit int) *FixedWindowLimiter {
	t.Helper()
	limiter, err := NewFixedWindowLimiter(Config{Addr: srv.Addr(), Prefix: "test:ratelimit", Limit: limit, Window: time.Minute})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter
}

func TestFixedWindowLimiter(t *testing.T) {
	limiter := newLimiter(t, miniredis.RunT(t), 2)
	ctx := context.Background()
	if !limiter.Allow(ctx, "login:10.0.0.1") || !limiter.Allow(ctx, "login:10.0.0.1") {
		t.Fatalf("first two attempts should pass")
	}
	if limiter.Allow(ctx, "login:10.0.0.1") {
		t.Fatalf("third attempt should be blocked")
	}
	if !limiter.Allow(ctx, "login:10.0.0.2") {
		t.Fatalf("other clients keep their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	srv := miniredis.RunT(t)
	limiter := newLimiter(t, srv, 5)
	srv.Close()
	if limiter.Allow(context.Background(), "login:10.0.0.1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(Config{Limit: 1, Window: time.Second})
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	limiter := newLimiter(t, miniredis.RunT(t), 1)
	h := Middleware(limiter, "login")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("attempt %d: status %d, want %d", i+1, rec.Code, want)
		}
	}
}
