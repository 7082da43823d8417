package principal

import (
	"net"
	"net/url"
	"strings"
)

// MatchOrigin reports whether origin is on the allow-list. An entry matches
// on exact scheme and host. "*" allows any origin, and
// "https://*.example.com" allows any subdomain of example.com. Ports must
// match exactly in both forms.
func MatchOrigin(allowed []string, origin string) bool {
	o, ok := parseOrigin(origin)
	if !ok {
		return false
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		scheme, host, found := strings.Cut(strings.ToLower(entry), "://")
		if !found {
			continue
		}
		if scheme != o.Scheme {
			continue
		}
		host = strings.TrimSuffix(host, "/")
		if suffix, wild := strings.CutPrefix(host, "*."); wild {
			suffix, port := splitPort(suffix)
			if port == o.Port() && strings.HasSuffix(o.Hostname(), "."+suffix) {
				return true
			}
			continue
		}
		if host == o.Host {
			return true
		}
	}
	return false
}

// splitPort separates an optional ":port" from an allow-list host.
func splitPort(host string) (string, string) {
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	return host, ""
}

// IsLoopbackOrigin reports whether origin points at localhost or a loopback address.
func IsLoopbackOrigin(origin string) bool {
	o, ok := parseOrigin(origin)
	if !ok {
		return false
	}
	host := o.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func parseOrigin(origin string) (*url.URL, bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return nil, false
	}
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}
