package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"forward-elements/internal/domain"
)

// BearerAuth checks the Authorization header against a static API key using
// constant-time comparison to prevent timing attacks. A missing or malformed
// header is 401; a present but wrong key is 403.
type BearerAuth struct {
	key []byte
}

// NewBearerAuth builds an authenticator for the given API key.
func NewBearerAuth(apiKey string) *BearerAuth {
	return &BearerAuth{key: []byte(apiKey)}
}

// Authenticate extracts and checks the bearer token from an Authorization
// header value.
func (a *BearerAuth) Authenticate(header string) error {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return domain.ErrAuthMissing
	}
	if subtle.ConstantTimeCompare([]byte(parts[1]), a.key) != 1 {
		return domain.ErrAuthInvalid
	}
	return nil
}

// Middleware enforces bearer auth on every request.
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := a.Authenticate(r.Header.Get("Authorization")); err {
		case nil:
			next.ServeHTTP(w, r)
		case domain.ErrAuthMissing:
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
		default:
			writeError(w, http.StatusForbidden, "Forbidden", "Invalid API key")
		}
	})
}
