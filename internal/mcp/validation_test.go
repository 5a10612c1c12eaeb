// validation_test.go - Input clamping, filters, and response helpers.
package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		def   int
		want  int
	}{
		{"zero takes default", 0, 50, 50},
		{"in range unchanged", 25, 50, 25},
		{"negative floors to one", -3, 50, 1},
		{"over cap", 5000, 50, 200},
		{"cap exactly", 200, 50, 200},
		{"default itself over cap", 0, 1000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClampLimit(tt.limit, tt.def))
		})
	}
}

func TestValidateURLFilter(t *testing.T) {
	origin, err := ValidateURLFilter("https://app.example.com/deep/path?x=1")
	require.NoError(t, err)
	require.Equal(t, "https://app.example.com", origin)

	for _, raw := range []string{"", "app.example.com", "ftp://files.example.com/a"} {
		_, err = ValidateURLFilter(raw)
		require.EqualError(t, err, "INVALID_INPUT: url must be a valid absolute http(s) URL", "input %q", raw)
	}
}

func TestParseTabID(t *testing.T) {
	id, err := ParseTabID(nil)
	require.NoError(t, err)
	require.Nil(t, id)

	id, err = ParseTabID(json.RawMessage("42"))
	require.NoError(t, err)
	require.Equal(t, 42, *id)

	_, err = ParseTabID(json.RawMessage("4.5"))
	require.EqualError(t, err, "INVALID_INPUT: tabId must be an integer")

	_, err = ParseTabID(json.RawMessage(`"42"`))
	require.EqualError(t, err, "INVALID_INPUT: tabId must be an integer")
}

func TestRequireString(t *testing.T) {
	require.NoError(t, RequireString("sess-a", "sessionId"))
	require.EqualError(t, RequireString("", "sessionId"), "INVALID_INPUT: missing required field: sessionId")
}

func TestValidateParamsAgainstSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sessionId": map[string]any{"type": "string"},
			"limit":     map[string]any{"type": "number"},
		},
	}

	require.Nil(t, ValidateParamsAgainstSchema(nil, schema))
	require.Nil(t, ValidateParamsAgainstSchema(json.RawMessage(`{"sessionId":"a","limit":5}`), schema))
	require.Nil(t, ValidateParamsAgainstSchema(json.RawMessage(`not json`), schema))

	warnings := ValidateParamsAgainstSchema(json.RawMessage(`{"sesionId":"a"}`), schema)
	require.Len(t, warnings, 1)
	require.Equal(t, "unknown parameter 'sesionId' (ignored)", warnings[0])
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "abcdefg...", Truncate("abcdefghijkl", 10))
	require.Equal(t, "..", Truncate("abcdef", 2))
	require.Equal(t, "", Truncate("abcdef", 0))
}

func TestJSONResponse(t *testing.T) {
	raw := JSONResponse("2 entries", map[string]any{"count": 2})
	var result MCPToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.False(t, result.IsError)
	require.Equal(t, "2 entries\n{\"count\":2}", result.Content[0].Text)

	raw = JSONResponse("", map[string]any{"count": 2})
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "{\"count\":2}", result.Content[0].Text)
}

func TestAppendWarningsToResponse(t *testing.T) {
	resp := resultResponse("1", TextResponse("ok"))

	unchanged := AppendWarningsToResponse(resp, nil)
	require.Equal(t, resp, unchanged)

	with := AppendWarningsToResponse(resp, []string{"unknown parameter 'x' (ignored)"})
	var result MCPToolResult
	require.NoError(t, json.Unmarshal(with.Result, &result))
	require.Len(t, result.Content, 2)
	require.Equal(t, "_warnings: unknown parameter 'x' (ignored)", result.Content[1].Text)
}
