package shared

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta is the client metadata recorded alongside audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// MetaFromRequest extracts client metadata, preferring X-Forwarded-For.
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip == "" {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
	}
	return RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}
