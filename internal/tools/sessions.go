// sessions.go - Session listing and summary tools.
package tools

import (
	"encoding/json"
	"time"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
)

const defaultSessionLimit = 25

// sessionEntry is one list_sessions row plus live-connection metadata.
type sessionEntry struct {
	store.Session
	Connection *registry.ConnectionState `json:"connection,omitempty"`
}

func listSessions(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SinceMinutes int `json:"sinceMinutes"`
		Limit        int `json:"limit"`
		Offset       int `json:"offset"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
		}
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	limit := mcp.ClampLimit(params.Limit, defaultSessionLimit)

	var sinceMs int64
	if params.SinceMinutes > 0 {
		sinceMs = time.Now().Add(-time.Duration(params.SinceMinutes) * time.Minute).UnixMilli()
	}

	rows, err := d.Store.ListRecentSessions(sinceMs, limit+1, params.Offset)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	n, truncated := trimPage(len(rows), limit)

	entries := make([]sessionEntry, 0, n)
	for _, sess := range page(rows, n) {
		entry := sessionEntry{Session: sess}
		if state, ok := d.Registry.GetConnectionState(sess.ID); ok {
			entry.Connection = &state
		}
		entries = append(entries, entry)
	}

	return respond("", LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
		"sessions": entries,
	})
}

func getSessionSummary(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}

	id := store.SessionID(params.SessionID)
	exists, err := d.Store.SessionExists(id)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	if !exists {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSessionNotFound, "session %s not found", id))
	}

	sum, err := d.Store.GetSessionSummary(id)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	return respond(id, LimitsApplied{MaxResults: 1, Truncated: false}, map[string]any{
		"summary": sum,
	})
}
