package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"policydesk/pkg/requestcontext"
)

// ClientMetadata records the caller's IP, User-Agent and a short device
// description on the request context for audit events. Apply it early in the
// chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), userAgent, DescribeDevice(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeDevice summarises a User-Agent as "Browser on OS", with a
// "(mobile)" or "(bot)" suffix when applicable. Empty input yields "".
func DescribeDevice(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	desc := browser
	if os := ua.OS(); os != "" {
		desc += " on " + os
	}
	switch {
	case ua.Bot():
		desc += " (bot)"
	case ua.Mobile():
		desc += " (mobile)"
	}
	return strings.TrimSpace(desc)
}

// ClientIPFromRequest extracts the client IP, honouring X-Forwarded-For and
// X-Real-IP set by proxies.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
