package session

import (
	"net"
	"net/http"
	"strings"
)

// Fingerprint is a snapshot of client-identifying request signals, captured
// once at login and re-supplied at every refresh for comparison.
type Fingerprint struct {
	UserAgent      string `json:"user_agent,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	AcceptEncoding string `json:"accept_encoding,omitempty"`
}

// FingerprintFromRequest captures the client signals of r.
func FingerprintFromRequest(r *http.Request) Fingerprint {
	return Fingerprint{
		UserAgent:      r.UserAgent(),
		IPAddress:      clientIP(r),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	}
}

// Diff lists the names of signals that changed between f and other. An empty
// result means the fingerprints match. Some signals legitimately rotate
// (mobile IPs in particular), so a non-empty diff is an audit datum, not a
// rejection by itself.
func (f Fingerprint) Diff(other Fingerprint) []string {
	var changed []string
	if f.UserAgent != other.UserAgent {
		changed = append(changed, "user_agent")
	}
	if f.IPAddress != other.IPAddress {
		changed = append(changed, "ip_address")
	}
	if f.AcceptLanguage != other.AcceptLanguage {
		changed = append(changed, "accept_language")
	}
	if f.AcceptEncoding != other.AcceptEncoding {
		changed = append(changed, "accept_encoding")
	}
	return changed
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
