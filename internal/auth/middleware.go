package auth

import (
	"net/http"
)

// RequireAdmin guards destructive routes (bulk import, clear-all) with
// the shared admin token. Scan and read-only routes stay open on the
// kiosk LAN.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, "Authorization required: "+err.Error(), http.StatusUnauthorized)
				return
			}

			if err := VerifyAdminToken(tokenString, secret); err != nil {
				http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
