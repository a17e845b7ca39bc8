package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"hometracker.app/internal/auth"
	"hometracker.app/internal/obs"
	"hometracker.app/internal/ratelimit"
)

const serviceName = "hometracker-api"

// Pinger is satisfied by *sql.DB, *pg.Store and redis clients wrapped by
// PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadyProbe checks the dependencies the API cannot serve without.
type ReadyProbe struct {
	DB    Pinger
	Redis Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP layer in front of auth.Service.
type API struct {
	router     *mux.Router
	readyProbe readinessChecker
	version    string
	auth       *auth.Service
	log        logrus.FieldLogger

	rateBurst      int
	ratePerSec     float64
	lockout        ratelimit.Window
	csrf           bool
	allowedOrigins []string
	trustedProxies []netip.Prefix
	maxBodyBytes   int64
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-IP token bucket applied to unsafe methods.
// A zero burst disables it.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// WithLockout enables the brute-force guard on login and register.
func WithLockout(w ratelimit.Window) Option {
	return func(a *API) { a.lockout = w }
}

// WithCSRF toggles double-submit cookie checks on unsafe methods.
func WithCSRF(enabled bool) Option {
	return func(a *API) { a.csrf = enabled }
}

// WithAllowedOrigins lists CORS origins allowed in addition to localhost.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) { a.allowedOrigins = append(a.allowedOrigins, origins...) }
}

// WithTrustedProxies lists the peers whose X-Forwarded-For is believed.
func WithTrustedProxies(prefixes ...netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = append(a.trustedProxies, prefixes...) }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithLogger overrides the logger used for request-independent events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(rp readinessChecker, version string, svc *auth.Service, opts ...Option) *API {
	a := &API{
		router:       mux.NewRouter(),
		readyProbe:   rp,
		version:      version,
		auth:         svc,
		log:          obs.Logger(),
		rateBurst:    100,
		ratePerSec:   100.0 / (15 * 60),
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}

	r := a.router
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/csrf-token", a.handleCSRFToken).Methods(http.MethodGet)

	users := r.PathPrefix("/api/users").Subrouter()
	users.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost)
	users.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)

	authed := users.NewRoute().Subrouter()
	authed.Use(a.withAuth)
	authed.HandleFunc("/refresh", a.handleRefresh).Methods(http.MethodPost)
	authed.HandleFunc("/me", a.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/me/password", a.handleChangePassword).Methods(http.MethodPut)
	authed.Handle("", RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleListUsers))).Methods(http.MethodGet)
	authed.Handle("/", RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleListUsers))).Methods(http.MethodGet)
	authed.HandleFunc("/{id}", a.handleGetUser).Methods(http.MethodGet)
	authed.HandleFunc("/{id}", a.handleUpdateUser).Methods(http.MethodPut)
	authed.Handle("/{id}", RequireRole(auth.RoleAdmin)(http.HandlerFunc(a.handleDeleteUser))).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return a
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	if a.csrf {
		h = CSRF(h)
	}
	if a.lockout != nil {
		h = AuthLockout(h, a.lockout)
	}
	if a.rateBurst > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.allowedOrigins...)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(h, a.trustedProxies...)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

// envelope is the response body of every /api route.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, r *http.Request, code int, msg string, data any) {
	writeJSON(w, code, envelope{
		Success:   true,
		Data:      data,
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, envelope{
		Success:   false,
		Error:     msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError renders service errors. Internal details stay in the logs.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), auth.ErrInvalidInput.Error()+": "))
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrAuthenticationRequired):
		w.Header().Set("WWW-Authenticate", `Bearer realm="hometracker"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", `Bearer realm="hometracker", error="invalid_token"`)
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient role")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrEmailInUse):
		writeError(w, r, http.StatusConflict, "email already in use")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
