package obs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/api/users":                 "/api/users",
		"/api/users/01HZX3":          "/api/users/:id",
		"/api/users/01HZX3?x=1":      "/api/users/:id",
		"/api/users/me":              "/api/users/me",
		"/api/users/me/password":     "/api/users/me/password",
		"/api/users/login":           "/api/users/login",
		"/api/users/register":        "/api/users/register",
		"/api/users/refresh":         "/api/users/refresh",
		"/healthz?verbose=1":         "/healthz",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	Init()
	Init()

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/users/:id", "418"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/users/:id", "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests counted, got %v", after-before)
	}
}

func TestAuthAttemptAndDerivation(t *testing.T) {
	before := testutil.ToFloat64(authAttempts.WithLabelValues("login", "success"))
	AuthAttempt("login", "success")
	if got := testutil.ToFloat64(authAttempts.WithLabelValues("login", "success")); got-before != 1 {
		t.Fatalf("auth attempt not counted: %v", got-before)
	}

	ObserveDerivation("verify", 3*time.Millisecond)
	if n := testutil.CollectAndCount(derivationSeconds); n == 0 {
		t.Fatal("expected derivation histogram series")
	}

	SetReady(true)
	if got := testutil.ToFloat64(readyGauge); got != 1 {
		t.Fatalf("ready gauge=%v", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(readyGauge); got != 0 {
		t.Fatalf("ready gauge=%v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	Init()
	AuthAttempt("register", "success")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "auth_attempts_total") {
		t.Fatal("auth_attempts_total missing from exposition")
	}
}
