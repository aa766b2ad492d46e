package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

const unknownClient = "Unknown"

// ClientMeta records the client IP and User-Agent in the request context for
// Login and audit events.
//
// The IP is the first X-Forwarded-For entry, then X-Real-IP, then the
// connection's remote address. Run it only behind a proxy that sets these
// headers; the value is never used for access decisions.
func ClientMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := lmsauth.WithClientIP(r.Context(), ClientIP(r))
		ctx = lmsauth.WithUserAgent(ctx, UserAgent(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP extracts the caller address as ClientMeta does.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return unknownClient
}

// UserAgent returns the User-Agent header or "Unknown".
func UserAgent(r *http.Request) string {
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return unknownClient
}
