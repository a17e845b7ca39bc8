package httpapi

import (
	"net/http"

	"hometracker.app/internal/auth"
)

const authHeader = "Authorization"

// withAuth resolves the bearer token into an identity and attaches it, with
// the raw token, to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get(authHeader)
		id, err := a.auth.Authenticate(r.Context(), header)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		token, _ := auth.BearerToken(header)
		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose identity holds less than min.
func RequireRole(min int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				handleAuthError(w, r, auth.ErrAuthenticationRequired)
				return
			}
			if !id.HasRole(min) {
				handleAuthError(w, r, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
