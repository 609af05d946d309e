package middleware

import (
	"net/http"

	"github.com/MrEthical07/falcomAuth/account"
)

// RequireRole runs RequireAuth and then admits only the listed roles.
func RequireRole(v TokenValidator, roles ...account.Role) func(http.Handler) http.Handler {
	auth := RequireAuth(v)
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				reject(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if claims.Role == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			reject(w, http.StatusForbidden, "Forbidden")
		})
		return auth(check)
	}
}

// RequireAdmin admits admin tokens only.
func RequireAdmin(v TokenValidator) func(http.Handler) http.Handler {
	return RequireRole(v, account.RoleAdmin)
}
