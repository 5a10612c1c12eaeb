// validation.go - Per-tool input validation helpers.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/firelens/firelens/internal/util"
)

// Pagination bounds shared by every listing tool.
const (
	MaxToolLimit = 200
	MinToolLimit = 1
)

// ClampLimit forces limit into [1, 200], substituting def when unset.
func ClampLimit(limit, def int) int {
	if limit == 0 {
		limit = def
	}
	if limit < MinToolLimit {
		return MinToolLimit
	}
	if limit > MaxToolLimit {
		return MaxToolLimit
	}
	return limit
}

// ValidateURLFilter checks a url filter argument and returns the normalized
// scheme+host origin.
func ValidateURLFilter(raw string) (string, error) {
	if !util.IsValidAbsoluteHTTPURL(raw) {
		return "", InvalidInput("url must be a valid absolute http(s) URL")
	}
	origin := util.NormalizeOrigin(raw)
	if origin == "" {
		return "", InvalidInput("url must be a valid absolute http(s) URL")
	}
	return origin, nil
}

// ParseTabID validates a tabId argument that may arrive as a JSON number.
// Non-integer values are rejected.
func ParseTabID(raw json.RawMessage) (*int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, InvalidInput("tabId must be an integer")
	}
	if f != float64(int(f)) {
		return nil, InvalidInput("tabId must be an integer")
	}
	v := int(f)
	return &v, nil
}

// RequireString returns an INVALID_INPUT error naming the missing field.
func RequireString(value, field string) error {
	if value == "" {
		return InvalidInput("missing required field: %s", field)
	}
	return nil
}

// ValidateParamsAgainstSchema checks incoming JSON keys against the tool's
// declared properties and returns warnings for unknown fields, so misspelled
// parameters are discoverable.
func ValidateParamsAgainstSchema(data json.RawMessage, schema map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}

	var warnings []string
	for k := range raw {
		if _, known := props[k]; !known {
			warnings = append(warnings, fmt.Sprintf("unknown parameter '%s' (ignored)", k))
		}
	}
	return warnings
}
