package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address the request came from. Forwarding headers
// are only trusted when the server sits behind a proxy that sets them;
// otherwise any client could spoof its address.
//
// With trustProxy set, the first X-Forwarded-For entry wins, then X-Real-IP,
// then RemoteAddr. IPv6 literals are returned without brackets.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return stripBrackets(ip)
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return stripBrackets(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return stripBrackets(r.RemoteAddr)
	}
	return ip
}

// BearerToken extracts the token from an "Authorization: Bearer" header,
// falling back to the token query parameter browsers use for WebSockets.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func stripBrackets(ip string) string {
	return strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
}
