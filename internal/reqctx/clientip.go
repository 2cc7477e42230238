package reqctx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the best-effort client IP from the request.
//
// Security model: if the direct peer is on a private/loopback/link-local
// network (typical for an ingress or reverse proxy), trust
// X-Forwarded-For / X-Real-IP. If the request arrives directly from the
// public internet, forwarded headers are spoofable and RemoteAddr is used
// instead.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}

	parsed := net.ParseIP(remote)
	trustForwarded := parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast())

	if trustForwarded {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			if parts := strings.Split(xff, ","); len(parts) > 0 {
				candidate := strings.TrimSpace(parts[0])
				if host, _, err := net.SplitHostPort(candidate); err == nil {
					candidate = host
				}
				if candidate != "" {
					return candidate
				}
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if host, _, err := net.SplitHostPort(xri); err == nil {
				xri = host
			}
			if xri != "" {
				return xri
			}
		}
	}

	return remote
}
