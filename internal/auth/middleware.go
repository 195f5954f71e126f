package auth

import (
	"net/http"
)

// DenyFunc writes the response for a request that failed authentication.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware verifies the bearer token on every non-public request and stores the claims in the
// request context.
func Middleware(v Verifier, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := ExtractTokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				deny(w, r, err)
				return
			}

			claims, err := v.VerifyToken(r.Context(), token)
			if err != nil {
				deny(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

// LocalDevMiddleware gives every request an admin identity with access to all accounts.
// X-Debug-Impersonate-User replaces the user id. Never use it in production.
func LocalDevMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &UserClaims{
				UID:         "local-dev-user",
				Email:       "dev@localhost",
				DisplayName: "Local Dev User",
				Verified:    true,
				Accounts:    []string{AllAccounts},
				Admin:       true,
			}
			if user := r.Header.Get("X-Debug-Impersonate-User"); user != "" {
				claims.UID = user
				claims.Email = user + "@debug.local"
			}
			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/ping":
		return true
	}
	return false
}
