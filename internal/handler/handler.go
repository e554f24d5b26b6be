package handler

import (
	"net"
	"net/http"
	"strings"
)

// CORS allows the configured origins only, answering preflight requests
// directly. With an empty allowlist no CORS headers are emitted at all.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, ao := range allowedOrigins {
				if origin == ao {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Form-Token, X-Requested-With")
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the submitting client's address. CF-Connecting-IP is set
// by the CDN in front of this service. Behind other reverse proxies the
// address is read from the rightmost trusted X-Forwarded-For position; the
// leftmost entries are sender-controlled and must never become the identity.
// With no trusted proxies configured the peer address is used directly.
func ClientIP(r *http.Request, trustedProxies int) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && trustedProxies > 0 {
		parts := strings.Split(xff, ",")
		// The rightmost entry added by our own infrastructure is at
		// index len(parts) - trustedProxies.
		idx := len(parts) - trustedProxies
		if idx >= 0 && idx < len(parts) {
			if ip := strings.TrimSpace(parts[idx]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
