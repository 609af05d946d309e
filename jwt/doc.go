// Package jwt issues and verifies the session tokens handed out after a
// completed login. Tokens carry the account ID, its role and a unique jti;
// verification pins the algorithm and checks expiry, issuer and audience.
package jwt
