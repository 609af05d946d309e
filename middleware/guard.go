package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	falcomAuth "github.com/MrEthical07/falcomAuth"
)

// TokenValidator is the part of *falcomAuth.Engine the guards need.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*falcomAuth.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*falcomAuth.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*falcomAuth.Claims)
	return c, ok
}

// WithClaims stores claims in ctx. Handlers under test use it in place of
// RequireAuth.
func WithClaims(ctx context.Context, c *falcomAuth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				reject(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				msg := "Unauthorized"
				if errors.Is(err, falcomAuth.ErrTokenInvalid) {
					msg = "Invalid or expired token"
				}
				reject(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func reject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
