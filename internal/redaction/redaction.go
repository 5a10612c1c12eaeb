// redaction.go - Pre-persistence scrubbing of credential-shaped values.
// Walks a decoded JSON value tree and returns a new tree with credential
// strings and sensitive-keyed values replaced by redaction markers.
// Uses RE2 regex (Go's regexp package) for guaranteed linear-time matching.
// Thread-safe: the redactor is built once at startup and reused.
package redaction

import (
	"regexp"
	"strings"
)

// RedactedMarker replaces values under sensitive keys.
const RedactedMarker = "[REDACTED]"

// valuePattern is a credential-shaped string rule. A match replaces the whole
// matched region with a marker naming the rule.
type valuePattern struct {
	name  string
	regex *regexp.Regexp
}

var valuePatterns = []valuePattern{
	{"authorization-header", regexp.MustCompile(`(?i)authorization\s*[:=]\s*\S+(\s+\S+)?`)},
	{"bearer-token", regexp.MustCompile(`Bearer [A-Za-z0-9\-._~+/]+=*`)},
	{"basic-auth", regexp.MustCompile(`Basic [A-Za-z0-9+/]+=*`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+`)},
	{"api-key", regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[:=]\s*\S+`)},
	{"token-pair", regexp.MustCompile(`(?i)(token|password|passwd|pwd)\s*[:=]\s*\S+`)},
	{"session-cookie", regexp.MustCompile(`(?i)(session|sid|csrf|xsrf)\s*=\s*[A-Za-z0-9+/=_-]{16,}`)},
	{"cookie-header", regexp.MustCompile(`(?i)(set-)?cookie\s*:\s*\S+`)},
}

// sensitiveKeyPatterns fully redact any value stored under a matching key.
var sensitiveKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^cookie(s)?$`),
	regexp.MustCompile(`(?i)^(pass(word)?|passwd|pwd)$`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)^secret`),
	regexp.MustCompile(`(?i)^auth(orization)?$`),
	regexp.MustCompile(`(?i)^value$`),
	regexp.MustCompile(`(?i)^input$`),
	regexp.MustCompile(`(?i)^form\.value$`),
	regexp.MustCompile(`(?i)storage$`),
}

// safeModeDroppedKinds are event kinds dropped wholesale in safe mode.
var safeModeDroppedKinds = map[string]bool{
	"cookie":          true,
	"storage":         true,
	"local_storage":   true,
	"session_storage": true,
}

// Redactor scrubs value trees before persistence.
type Redactor struct {
	safeMode bool
}

// New returns a redactor. In safe mode, whole event kinds carrying ambient
// browser secrets are dropped instead of scrubbed.
func New(safeMode bool) *Redactor {
	return &Redactor{safeMode: safeMode}
}

// ShouldDropEvent reports whether an event of this wire type must not be
// persisted at all (safe mode only).
func (r *Redactor) ShouldDropEvent(eventType string) bool {
	return r.safeMode && safeModeDroppedKinds[eventType]
}

// RedactTree returns a scrubbed copy of the value tree. The input is never
// mutated. Redaction is idempotent: markers are not re-redacted.
func (r *Redactor) RedactTree(v any) any {
	return redactValue(v, false)
}

// RedactMap is a convenience wrapper for event payloads.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := redactValue(m, false).(map[string]any)
	return out
}

func redactValue(v any, underSensitiveKey bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = redactValue(child, underSensitiveKey || isSensitiveKey(k))
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactValue(child, underSensitiveKey)
		}
		return out
	case string:
		if underSensitiveKey {
			if val == RedactedMarker || isRuleMarker(val) {
				return val
			}
			return RedactedMarker
		}
		return redactString(val)
	default:
		if underSensitiveKey {
			// Non-string sensitive values are flattened to the marker too.
			switch v.(type) {
			case nil:
				return nil
			default:
				return RedactedMarker
			}
		}
		return v
	}
}

func isSensitiveKey(key string) bool {
	for _, re := range sensitiveKeyPatterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// redactString applies every value pattern, replacing matches with a marker
// that records which rule fired.
func redactString(s string) string {
	if s == "" {
		return s
	}
	out := s
	for _, p := range valuePatterns {
		out = p.regex.ReplaceAllString(out, "[REDACTED:"+p.name+"]")
	}
	return out
}

// isRuleMarker reports whether s is already a rule marker produced by
// redactString, keeping redaction idempotent.
func isRuleMarker(s string) bool {
	return strings.HasPrefix(s, "[REDACTED:") && strings.HasSuffix(s, "]")
}
