// envelope.go - The uniform tool response envelope.
// Every tool answers {sessionId?, limitsApplied: {maxResults, truncated}, ...}.
package tools

import (
	"encoding/json"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/store"
)

// LimitsApplied reports the pagination outcome of one tool call.
type LimitsApplied struct {
	MaxResults int  `json:"maxResults"`
	Truncated  bool `json:"truncated"`
}

// envelope assembles the uniform response map. sessionID may be empty for
// tools that query across sessions.
func envelope(sessionID store.SessionID, limits LimitsApplied, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	if sessionID != "" {
		out["sessionId"] = string(sessionID)
	}
	out["limitsApplied"] = limits
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// respond serializes the envelope as a tool result.
func respond(sessionID store.SessionID, limits LimitsApplied, fields map[string]any) json.RawMessage {
	return mcp.JSONResponse("", envelope(sessionID, limits, fields))
}

// trimPage applies the fetch-limit+1 truncation convention to a slice length.
// Returns the page size to keep and whether truncation happened.
func trimPage(fetched, limit int) (int, bool) {
	if fetched > limit {
		return limit, true
	}
	return fetched, false
}

// page returns the first n rows as a non-nil slice, so empty results marshal
// as [] rather than null.
func page[T any](rows []T, n int) []T {
	out := make([]T, n)
	copy(out, rows[:n])
	return out
}
