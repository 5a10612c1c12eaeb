// redaction_test.go - Credential scrubbing rules and idempotency.
package redaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactStringPatterns(t *testing.T) {
	r := New(false)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bearer token", "Bearer abc123.def-456", "[REDACTED:bearer-token]"},
		{"basic auth", "Basic dXNlcjpwYXNz", "[REDACTED:basic-auth]"},
		{"jwt", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig-part", "[REDACTED:jwt]"},
		{"api key assignment", "api_key=sk_live_abc123", "[REDACTED:api-key]"},
		{"token assignment", "token: abcdef", "[REDACTED:token-pair]"},
		{"plain text untouched", "clicked the submit button", "clicked the submit button"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactTree(tt.in)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRedactMapSensitiveKeys(t *testing.T) {
	r := New(false)
	in := map[string]any{
		"password": "hunter2",
		"authToken": "abc",
		"cookie":    "sid=deadbeefdeadbeef",
		"value":     "typed text",
		"selector":  "#login",
		"count":     float64(3),
		"nested": map[string]any{
			"secretKey": "s3cr3t",
			"label":     "ok",
		},
	}

	out := r.RedactMap(in)
	require.Equal(t, RedactedMarker, out["password"])
	require.Equal(t, RedactedMarker, out["authToken"])
	require.Equal(t, RedactedMarker, out["cookie"])
	require.Equal(t, RedactedMarker, out["value"])
	require.Equal(t, "#login", out["selector"])
	require.Equal(t, float64(3), out["count"])

	nested := out["nested"].(map[string]any)
	require.Equal(t, RedactedMarker, nested["secretKey"])
	require.Equal(t, "ok", nested["label"])

	// Input tree is never mutated.
	require.Equal(t, "hunter2", in["password"])
}

func TestRedactionIsIdempotent(t *testing.T) {
	r := New(false)
	in := map[string]any{
		"password": "hunter2",
		"headers":  "Authorization: Bearer tok123",
		"args":     []any{"token=abc", "plain"},
	}

	once := r.RedactMap(in)
	twice := r.RedactMap(once)
	require.Equal(t, once, twice)
}

func TestRedactNonStringSensitiveValues(t *testing.T) {
	r := New(false)
	out := r.RedactMap(map[string]any{
		"token":  float64(12345),
		"secret": nil,
	})
	require.Equal(t, RedactedMarker, out["token"])
	require.Nil(t, out["secret"])
}

func TestSafeModeDropsAmbientSecretKinds(t *testing.T) {
	safe := New(true)
	normal := New(false)

	for _, kind := range []string{"cookie", "storage", "local_storage", "session_storage"} {
		require.True(t, safe.ShouldDropEvent(kind), "kind %s", kind)
		require.False(t, normal.ShouldDropEvent(kind), "kind %s", kind)
	}
	require.False(t, safe.ShouldDropEvent("click"))
	require.False(t, safe.ShouldDropEvent("console"))
}
