package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

const (
	csrfCookie = "csrf_token"
	csrfHeader = "X-CSRF-Token"
	csrfBytes  = 32
	csrfMaxAge = 24 * 60 * 60
)

// CSRF enforces the double-submit cookie on state-changing methods.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get(csrfHeader)
		cookie, err := r.Cookie(csrfCookie)
		if err != nil || header == "" || cookie.Value == "" ||
			subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			writeError(w, r, http.StatusForbidden, "invalid csrf token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	raw := make([]byte, csrfBytes)
	if _, err := rand.Read(raw); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	token := hex.EncodeToString(raw)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfMaxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	writeData(w, r, http.StatusOK, "", map[string]string{"csrfToken": token})
}
