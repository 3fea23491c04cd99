package handlers

import (
	"net"
	"net/http"
	"strings"
)

// Throttled endpoints share a limiter but count against separate buckets.
const (
	scopeRegister      = "register"
	scopeLogin         = "login"
	scopePasswordReset = "password-reset"
)

// retryAfterSeconds is advertised to throttled clients.
const retryAfterSeconds = "60"

// throttled reports whether the request exceeded its budget for scope and, if so, writes the 429.
func throttled(w http.ResponseWriter, r *http.Request, limiter RateLimiter, scope string) bool {
	if limiter == nil || limiter.Allow(r.Context(), scope+":"+clientIP(r)) {
		return false
	}
	w.Header().Set("Retry-After", retryAfterSeconds)
	respondError(r.Context(), w, http.StatusTooManyRequests, "too many requests")
	return true
}

// clientIP prefers proxy headers and falls back to the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
