package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freeeve/vendetta/api/internal/auth"
)

func TestRateLimiterPerUser(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rl := NewRateLimiter(0.001, 2)
	handler := rl.Handler(inner)

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("alice"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", code)
	}
	if code := do("bob"); code != http.StatusOK {
		t.Errorf("other users keep their own budget, got %d", code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewRateLimiter(0, 1).Handler(inner)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.allow("alice", now.Add(-time.Hour))
	rl.allow("bob", now)
	if n := rl.Prune(now); n != 1 {
		t.Errorf("expected 1 pruned visitor, got %d", n)
	}
}

func TestRateLimiterKeysAnonymousByHost(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewRateLimiter(0.001, 1).Handler(inner)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("10.0.0.1:4000"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := do("10.0.0.1:4001"); code != http.StatusTooManyRequests {
		t.Errorf("same host on another port should share the bucket, got %d", code)
	}
	// No port: each address keeps its own bucket instead of collapsing to "".
	if code := do("unix-peer-a"); code != http.StatusOK {
		t.Errorf("portless peer a: expected 200, got %d", code)
	}
	if code := do("unix-peer-b"); code != http.StatusOK {
		t.Errorf("portless peer b: expected 200, got %d", code)
	}
}

func TestClientHost(t *testing.T) {
	for addr, want := range map[string]string{
		"192.0.2.1:80": "192.0.2.1",
		"[::1]:8080":   "::1",
		"192.0.2.1":    "192.0.2.1",
		"":             "",
	} {
		if got := clientHost(addr); got != want {
			t.Errorf("clientHost(%q) = %q, want %q", addr, got, want)
		}
	}
}
