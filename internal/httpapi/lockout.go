package httpapi

import (
	"math"
	"net/http"
	"strconv"

	"hometracker.app/internal/audit"
	"hometracker.app/internal/obs"
	"hometracker.app/internal/ratelimit"
)

var credentialPaths = map[string]bool{
	"/api/users/login":    true,
	"/api/users/register": true,
}

// AuthLockout counts POSTs to the credential endpoints per client IP and
// refuses them once the window's allowance is spent. Backend failures let
// the request through.
func AuthLockout(next http.Handler, window ratelimit.Window) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !credentialPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		d, err := window.Hit(r.Context(), ip)
		if err != nil {
			obs.Logger().WithFields(map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			}).Warn("auth lockout unavailable")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(retry))
			_ = audit.LogEvent(r.Context(), "auth.lockout", map[string]any{
				"remote_ip":   ip,
				"path":        r.URL.Path,
				"retry_after": retry,
			})
			obs.AuthAttempt("lockout", "blocked")
			writeError(w, r, http.StatusTooManyRequests, "too many attempts, retry in "+strconv.Itoa(retry)+" seconds")
			return
		}
		next.ServeHTTP(w, r)
	})
}
