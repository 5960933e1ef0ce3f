package limiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestMiddlewareRejectsOverBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Every(time.Hour), 2)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusNoContent || statuses[1] != http.StatusNoContent {
		t.Fatalf("first two requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", statuses[2])
	}

	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	other.RemoteAddr = "192.0.2.11:5555"
	if !l.Allow(other) {
		t.Fatal("a different address must have its own bucket")
	}
}

func TestSweepDropsRefilledBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewIPRateLimiter(ctx, rate.Every(time.Second), 1)
	l.GetLimiter("198.51.100.1").Allow()
	l.GetLimiter("198.51.100.2")

	if removed := l.sweep(time.Now()); removed != 1 {
		t.Fatalf("removed = %d, want only the untouched bucket", removed)
	}
	if removed := l.sweep(time.Now().Add(2 * time.Second)); removed != 1 {
		t.Fatalf("removed = %d, want the refilled bucket", removed)
	}
	if l.Len() != 0 {
		t.Fatalf("Len = %d, want 0", l.Len())
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q", got)
	}

	r.RemoteAddr = ""
	if got := ClientIP(r); got != "unknown_ip" {
		t.Fatalf("ClientIP = %q", got)
	}
}
