// HTTP middleware applied around the whole router.

package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"

	"github.com/kioku-dev/kioku/internal/server/ratelimit"
)

// accessLog logs one line per request with status and duration.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

// corsAllowAll answers preflight requests and marks every response as
// cross-origin readable. The server carries no credentials; its clients
// are study webviews served from app and file origins.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitByIP enforces the per-client request quota. A nil limiter
// disables enforcement.
func rateLimitByIP(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := limiter.Allow(clientIP(r))
		ratelimit.WriteHeaders(w, result)
		if !result.Allowed {
			writeRateLimitError(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address for rate limiting, preferring proxy
// headers over RemoteAddr.
func clientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The leftmost IP is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// RemoteAddr carries a port; IPv6 looks like [::1]:8080.
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}
