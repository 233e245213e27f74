package policy

import (
	"path"
	"strings"
)

// MatchPath reports whether p matches a glob pattern.
//
// Besides path.Match syntax, two shorthands are understood:
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches the extension in any directory
func MatchPath(pattern, p string) bool {
	if pattern == "" || pattern == "*" || pattern == "/*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*."); ok && !strings.ContainsAny(ext, "*?/") {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}
	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}

// MatchHost reports whether host matches a host pattern. A leading "*."
// matches the domain itself and any subdomain; "*" matches every host.
func MatchHost(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if pattern == "*" {
		return true
	}
	if domain, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
	if matched, err := path.Match(pattern, host); err == nil && matched {
		return true
	}
	return false
}
