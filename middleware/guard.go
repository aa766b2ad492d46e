package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

// Authenticator resolves a bearer token to an identity. *lmsauth.Authority
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*lmsauth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token bound to an
// active session, and attaches the identity to the request context.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, lmsauth.ErrUnauthenticated)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, lmsauth.ErrUnauthenticated)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(lmsauth.WithIdentity(r.Context(), id)))
		})
	}
}

// Optional attaches the identity when the request carries a valid token and
// otherwise passes the request through untouched.
func Optional(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth != nil {
				if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
					if id, err := auth.Authenticate(r.Context(), token); err == nil {
						r = r.WithContext(lmsauth.WithIdentity(r.Context(), id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext returns the identity attached by Authenticate or Optional.
func IdentityFromContext(ctx context.Context) (*lmsauth.Identity, bool) {
	return lmsauth.IdentityFromContext(ctx)
}

func bearerToken(value string) (string, bool) {
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
