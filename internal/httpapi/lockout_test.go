package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"hometracker.app/internal/ratelimit"
)

type brokenWindow struct{}

func (brokenWindow) Hit(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func credentialRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
	req.RemoteAddr = ip + ":5555"
	return req
}

func TestAuthLockoutBlocksAfterLimit(t *testing.T) {
	window, err := ratelimit.NewMemoryWindow(ratelimit.DefaultAuthPolicy)
	if err != nil {
		t.Fatalf("NewMemoryWindow: %v", err)
	}
	calls := 0
	handler := RequestID(AuthLockout(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}), window))

	for i := 1; i <= 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, credentialRequest("198.51.100.7"))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected pass-through, got %d", i, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(5-i) {
			t.Fatalf("attempt %d: remaining = %q", i, got)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, credentialRequest("198.51.100.7"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retry <= 0 || retry > int((30*time.Minute).Seconds()) {
		t.Fatalf("unexpected Retry-After %q", rr.Header().Get("Retry-After"))
	}
	if rr.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if calls != 5 {
		t.Fatalf("handler reached %d times, want 5", calls)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, credentialRequest("198.51.100.8"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("other client should not be blocked, got %d", rr.Code)
	}
}

func TestAuthLockoutIgnoresOtherRoutes(t *testing.T) {
	window, err := ratelimit.NewMemoryWindow(ratelimit.Policy{Limit: 1, Window: time.Minute})
	if err != nil {
		t.Fatalf("NewMemoryWindow: %v", err)
	}
	handler := AuthLockout(okHandler(), window)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/users/refresh", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("refresh limited: %d", rr.Code)
		}
	}
	if window.Len() != 0 {
		t.Fatalf("unrelated requests were counted: %d", window.Len())
	}
}

func TestAuthLockoutFailsOpen(t *testing.T) {
	handler := AuthLockout(okHandler(), brokenWindow{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, credentialRequest("198.51.100.9"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request through on backend failure, got %d", rr.Code)
	}
}
