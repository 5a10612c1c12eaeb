// events.go - SQL-backed event query tools.
package tools

import (
	"encoding/json"
	"time"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/store"
)

const defaultEventLimit = 50

// eventScope is the shared sessionId-or-url filter of the event query tools.
type eventScope struct {
	SessionID store.SessionID
	Origin    string
}

// parseScope validates the sessionId/url pair. At least one is required; url
// is normalized to its scheme+host+port origin.
func parseScope(sessionID, url string) (eventScope, error) {
	if sessionID == "" && url == "" {
		return eventScope{}, mcp.InvalidInput("either sessionId or url is required")
	}
	scope := eventScope{SessionID: store.SessionID(sessionID)}
	if url != "" {
		origin, err := mcp.ValidateURLFilter(url)
		if err != nil {
			return eventScope{}, err
		}
		scope.Origin = origin
	}
	return scope, nil
}

func sinceMinutesMs(minutes int) int64 {
	if minutes <= 0 {
		return 0
	}
	return time.Now().Add(-time.Duration(minutes) * time.Minute).UnixMilli()
}

type eventQueryParams struct {
	SessionID    string   `json:"sessionId"`
	URL          string   `json:"url"`
	Kinds        []string `json:"kinds"`
	Level        string   `json:"level"`
	SinceMinutes int      `json:"sinceMinutes"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

func (p *eventQueryParams) decode(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, p); err != nil {
		return mcp.InvalidInput("malformed arguments: %v", err)
	}
	if p.Offset < 0 {
		return mcp.InvalidInput("offset must be non-negative")
	}
	return nil
}

// queryEventsPage runs the shared query path and builds the envelope.
func queryEventsPage(d *Deps, params eventQueryParams, kinds []string, resultKey string) json.RawMessage {
	scope, err := parseScope(params.SessionID, params.URL)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	limit := mcp.ClampLimit(params.Limit, defaultEventLimit)

	rows, err := d.Store.QueryEvents(store.EventFilter{
		SessionID: scope.SessionID,
		Origin:    scope.Origin,
		Kinds:     kinds,
		SinceMs:   sinceMinutesMs(params.SinceMinutes),
		Limit:     limit + 1,
		Offset:    params.Offset,
	})
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	n, truncated := trimPage(len(rows), limit)

	return respond(scope.SessionID, LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
		resultKey: page(rows, n),
	})
}

func getRecentEvents(d *Deps, args json.RawMessage) json.RawMessage {
	var params eventQueryParams
	if err := params.decode(args); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	for _, k := range params.Kinds {
		switch k {
		case store.KindConsole, store.KindError, store.KindNetwork,
			store.KindNav, store.KindUI, store.KindElementRef:
		default:
			return mcp.ToolErrorResponse(mcp.InvalidInput("unknown event kind: %s", k))
		}
	}
	return queryEventsPage(d, params, params.Kinds, "events")
}

func getNavigationHistory(d *Deps, args json.RawMessage) json.RawMessage {
	var params eventQueryParams
	if err := params.decode(args); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	return queryEventsPage(d, params, []string{store.KindNav}, "navigations")
}

func getConsoleEvents(d *Deps, args json.RawMessage) json.RawMessage {
	var params eventQueryParams
	if err := params.decode(args); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	scope, err := parseScope(params.SessionID, params.URL)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	limit := mcp.ClampLimit(params.Limit, defaultEventLimit)

	// Level filtering happens on the payload, so fetch generously and filter
	// in one pass before the limit is applied.
	fetch := limit + 1
	if params.Level != "" {
		fetch = mcp.MaxToolLimit + 1
	}
	rows, err := d.Store.QueryEvents(store.EventFilter{
		SessionID: scope.SessionID,
		Origin:    scope.Origin,
		Kinds:     []string{store.KindConsole},
		SinceMs:   sinceMinutesMs(params.SinceMinutes),
		Limit:     fetch,
		Offset:    params.Offset,
	})
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	if params.Level != "" {
		filtered := rows[:0]
		for _, ev := range rows {
			if level, _ := ev.Payload["level"].(string); level == params.Level {
				filtered = append(filtered, ev)
			}
		}
		rows = filtered
	}
	n, truncated := trimPage(len(rows), limit)

	return respond(scope.SessionID, LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
		"events": page(rows, n),
	})
}

func getErrorFingerprints(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID    string `json:"sessionId"`
		SinceMinutes int    `json:"sinceMinutes"`
		Limit        int    `json:"limit"`
		Offset       int    `json:"offset"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
		}
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	limit := mcp.ClampLimit(params.Limit, defaultEventLimit)

	rows, err := d.Store.QueryErrorFingerprints(store.SessionID(params.SessionID),
		sinceMinutesMs(params.SinceMinutes), limit+1, params.Offset)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	n, truncated := trimPage(len(rows), limit)

	return respond(store.SessionID(params.SessionID),
		LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"fingerprints": page(rows, n),
		})
}

func getElementRefs(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		Selector  string `json:"selector"`
		Limit     int    `json:"limit"`
		Offset    int    `json:"offset"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if err := mcp.RequireString(params.Selector, "selector"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	limit := mcp.ClampLimit(params.Limit, defaultEventLimit)

	rows, err := d.Store.QueryElementRefs(store.SessionID(params.SessionID),
		params.Selector, limit+1, params.Offset)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	n, truncated := trimPage(len(rows), limit)

	return respond(store.SessionID(params.SessionID),
		LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"elementRefs": page(rows, n),
		})
}
