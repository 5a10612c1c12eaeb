// network.go - Network failure query tool.
package tools

import (
	"encoding/json"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/store"
)

func getNetworkFailures(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		URL       string `json:"url"`
		ErrorType string `json:"errorType"`
		GroupBy   string `json:"groupBy"`
		Limit     int    `json:"limit"`
		Offset    int    `json:"offset"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
		}
	}
	scope, err := parseScope(params.SessionID, params.URL)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	if params.ErrorType != "" && !store.ValidErrorClasses[params.ErrorType] {
		return mcp.ToolErrorResponse(mcp.InvalidInput("unknown errorType: %s", params.ErrorType))
	}
	limit := mcp.ClampLimit(params.Limit, defaultEventLimit)

	filter := store.NetworkFilter{
		SessionID:    scope.SessionID,
		Origin:       scope.Origin,
		ErrorClass:   params.ErrorType,
		FailuresOnly: true,
		Limit:        limit + 1,
		Offset:       params.Offset,
	}

	switch params.GroupBy {
	case "":
		rows, err := d.Store.QueryNetwork(filter)
		if err != nil {
			return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
		}
		n, truncated := trimPage(len(rows), limit)
		return respond(scope.SessionID, LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"failures": page(rows, n),
		})

	case "url", "domain", "errorType":
		groups, err := d.Store.GroupNetworkFailures(filter, params.GroupBy)
		if err != nil {
			return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
		}
		n, truncated := trimPage(len(groups), limit)
		return respond(scope.SessionID, LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"groups":  page(groups, n),
			"groupBy": params.GroupBy,
		})

	default:
		return mcp.ToolErrorResponse(mcp.InvalidInput("groupBy must be one of url, domain, errorType"))
	}
}
