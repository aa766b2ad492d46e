package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/lmsauth"
)

// RequireRoles admits only identities whose role is in roles. It must run
// after Authenticate.
func RequireRoles(roles ...lmsauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := lmsauth.IdentityFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, msgLogIn)
				return
			}
			if !slices.Contains(roles, id.Role) {
				WriteError(w, lmsauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOrAdmin admits the user whose id paramFn extracts from the
// request, and any admin role.
func RequireOwnerOrAdmin(paramFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := lmsauth.IdentityFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, msgLogIn)
				return
			}
			target := paramFn(r)
			if id.Role.IsAdmin() || (target != "" && id.UserID == target) {
				next.ServeHTTP(w, r)
				return
			}
			writeJSON(w, http.StatusForbidden, msgOwnOnly)
		})
	}
}
