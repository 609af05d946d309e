// Package middleware guards HTTP handlers with falcomAuth bearer tokens.
//
// [RequireAuth] reads the Authorization header, calls Engine.ValidateToken and
// stores the claims in the request context. [RequireRole] and [RequireAdmin]
// additionally check the role claim. Rejections are written as the JSON
// failure envelope used by the rest of the API.
//
// The package never parses tokens itself.
package middleware
