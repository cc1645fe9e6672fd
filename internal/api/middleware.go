// Package api implements the blog REST API using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth modes.
const (
	// ModePassthrough forwards the caller's bearer token as the gist credential.
	ModePassthrough = "passthrough"
	// ModeToken checks the caller against a server token and writes with the
	// configured gist credential.
	ModeToken = "token"
)

type credentialKey struct{}

// Credential returns the gist credential attached by AuthMiddleware, or "".
func Credential(ctx context.Context) string {
	s, _ := ctx.Value(credentialKey{}).(string)
	return s
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(auth, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}

// AuthMiddleware guards write routes. Every request must carry
// "Authorization: Bearer <token>". In passthrough mode the token is attached
// to the context for the store client; in token mode it must equal token.
func AuthMiddleware(mode, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearer(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("missing bearer token"))
				return
			}
			if mode == ModeToken {
				if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialKey{}, tok)))
		})
	}
}
