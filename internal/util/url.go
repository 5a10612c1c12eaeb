// url.go - URL parsing utilities: origin normalization and prefix matching.
package util

import (
	"net/url"
	"strings"
)

// NormalizeOrigin extracts the origin (scheme://host[:port]) from an http or
// https URL. Returns empty string for any other scheme or a malformed URL.
func NormalizeOrigin(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	// blob:https://example.com/uuid carries a nested origin
	rawURL = strings.TrimPrefix(rawURL, "blob:")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// IsValidAbsoluteHTTPURL reports whether rawURL parses as an absolute http(s) URL.
func IsValidAbsoluteHTTPURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// MatchesOrigin reports whether candidate equals origin or is a URL under it
// (exact match or prefixed by "<origin>/").
func MatchesOrigin(candidate, origin string) bool {
	if candidate == "" || origin == "" {
		return false
	}
	return candidate == origin || strings.HasPrefix(candidate, origin+"/")
}

// Domain extracts the host (without port) from a URL. Returns "" on parse failure.
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
