package registry

import (
	"net/url"
	"strings"
)

// compoundTLDs are two-label public suffixes that must keep a third label
// when reducing a hostname to its registrable root. The set covers the
// country registries poster sellers actually trade under.
var compoundTLDs = map[string]struct{}{
	"co.uk":  {},
	"com.au": {},
	"co.nz":  {},
	"co.jp":  {},
	"com.br": {},
	"co.za":  {},
}

// Hostname extracts the lowercased hostname from a URL or bare host string,
// stripping scheme, port, path, a trailing dot, and a leading "www.".
// Returns "" when no hostname can be derived.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		host = u.Hostname()
	} else {
		// Bare host, possibly with a path or port attached.
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// RootDomain reduces a URL or bare hostname to its registrable root domain:
// scheme, port, path, and a leading "www." are stripped, the result is
// lowercased, and compound TLDs keep their third label (shop.antikbar.co.uk
// → antikbar.co.uk). Returns "" when no hostname can be derived.
func RootDomain(raw string) string {
	host := Hostname(raw)
	if host == "" {
		return ""
	}

	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}

	lastTwo := parts[len(parts)-2] + "." + parts[len(parts)-1]
	if _, ok := compoundTLDs[lastTwo]; ok {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
