// catalog.go - The fixed tool catalogue and its input schemas.
package tools

import (
	"encoding/json"

	"github.com/firelens/firelens/internal/mcp"
)

// Register adds every tool to the server, bound to deps.
func Register(server *mcp.Server, d *Deps) {
	type entry struct {
		tool    mcp.MCPTool
		handler func(*Deps, json.RawMessage) json.RawMessage
	}
	catalog := []entry{
		{toolListSessions(), listSessions},
		{toolGetSessionSummary(), getSessionSummary},
		{toolGetRecentEvents(), getRecentEvents},
		{toolGetNavigationHistory(), getNavigationHistory},
		{toolGetConsoleEvents(), getConsoleEvents},
		{toolGetErrorFingerprints(), getErrorFingerprints},
		{toolGetNetworkFailures(), getNetworkFailures},
		{toolGetElementRefs(), getElementRefs},
		{toolExplainLastFailure(), explainLastFailure},
		{toolGetEventCorrelation(), getEventCorrelation},
		{toolListSnapshots(), listSnapshots},
		{toolGetSnapshotForEvent(), getSnapshotForEvent},
		{toolGetSnapshotAsset(), getSnapshotAsset},
		{toolGetDOMSubtree(), getDOMSubtree},
		{toolGetDOMDocument(), getDOMDocument},
		{toolGetComputedStyles(), getComputedStyles},
		{toolGetLayoutMetrics(), getLayoutMetrics},
		{toolCaptureUISnapshot(), captureUISnapshot},
		{toolGetLiveConsoleLogs(), getLiveConsoleLogs},
	}
	for _, e := range catalog {
		handler := e.handler
		server.RegisterTool(e.tool, func(args json.RawMessage) json.RawMessage {
			return handler(d, args)
		})
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]any {
	p := map[string]any{"type": typ}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func paginationProps() map[string]any {
	return map[string]any{
		"limit":  prop("number", "Max rows to return (clamped into [1, 200])"),
		"offset": prop("number", "Rows to skip"),
	}
}

func withPagination(props map[string]any) map[string]any {
	for k, v := range paginationProps() {
		props[k] = v
	}
	return props
}

func toolListSessions() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "list_sessions",
		Description: "List debugging sessions, newest first, with live-connection metadata for sessions whose agent is currently bound.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sinceMinutes": prop("number", "Only sessions created in the last N minutes"),
		})),
	}
}

func toolGetSessionSummary() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_session_summary",
		Description: "Error, console-warning, and network-failure counts plus the event time range and last known URL for one session.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session to summarize"),
		}, "sessionId"),
	}
}

func toolGetRecentEvents() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_recent_events",
		Description: "Recent telemetry events for a session or origin, newest first. At least one of sessionId or url is required.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId":    prop("string", "Session filter"),
			"url":          prop("string", "Absolute http(s) URL; normalized to its origin"),
			"sinceMinutes": prop("number", "Only events in the last N minutes"),
			"kinds": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "enum": []string{"console", "error", "network", "nav", "ui", "element_ref"}},
				"description": "Event kind filter",
			},
		})),
	}
}

func toolGetNavigationHistory() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_navigation_history",
		Description: "Navigation events for a session or origin, newest first.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId":    prop("string", "Session filter"),
			"url":          prop("string", "Absolute http(s) URL; normalized to its origin"),
			"sinceMinutes": prop("number", "Only events in the last N minutes"),
		})),
	}
}

func toolGetConsoleEvents() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_console_events",
		Description: "Persisted console events for a session or origin, newest first, optionally filtered to one level.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId":    prop("string", "Session filter"),
			"url":          prop("string", "Absolute http(s) URL; normalized to its origin"),
			"sinceMinutes": prop("number", "Only events in the last N minutes"),
			"level": map[string]any{
				"type": "string",
				"enum": []string{"debug", "log", "info", "warn", "error"},
			},
		})),
	}
}

func toolGetErrorFingerprints() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_error_fingerprints",
		Description: "Aggregated error fingerprints ordered by count desc, last-seen desc.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId":    prop("string", "Optional session filter"),
			"sinceMinutes": prop("number", "Only fingerprints seen in the last N minutes"),
		})),
	}
}

func toolGetNetworkFailures() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_network_failures",
		Description: "Failed network requests (non-null error class or status >= 400) for a session or origin, optionally grouped.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId": prop("string", "Session filter"),
			"url":       prop("string", "Absolute http(s) URL; normalized to its origin"),
			"errorType": map[string]any{
				"type": "string",
				"enum": []string{"timeout", "cors", "dns", "blocked", "http_error", "unknown"},
			},
			"groupBy": map[string]any{
				"type": "string",
				"enum": []string{"url", "domain", "errorType"},
			},
		})),
	}
}

func toolGetElementRefs() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_element_refs",
		Description: "Element reference events recorded for a selector within one session.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId": prop("string", "Session to search"),
			"selector":  prop("string", "CSS selector the references were recorded under"),
		}), "sessionId", "selector"),
	}
}

func toolExplainLastFailure() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "explain_last_failure",
		Description: "Anchor on the most recent error or network failure and build a timeline of surrounding activity with a root-cause classification.",
		InputSchema: objectSchema(map[string]any{
			"sessionId":       prop("string", "Session to analyze"),
			"lookbackSeconds": prop("number", "Half-width of the timeline window (default 30)"),
		}, "sessionId"),
	}
}

func toolGetEventCorrelation() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_event_correlation",
		Description: "Score events and failing network requests near an anchor event by kind affinity and temporal proximity; top 50 by correlationScore.",
		InputSchema: objectSchema(map[string]any{
			"eventId":       prop("string", "Anchor event"),
			"windowSeconds": prop("number", "Half-width of the search window (default 5, max 60)"),
		}, "eventId"),
	}
}

func toolListSnapshots() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "list_snapshots",
		Description: "UI snapshots captured for one session, newest first.",
		InputSchema: objectSchema(withPagination(map[string]any{
			"sessionId": prop("string", "Session to list"),
		}), "sessionId"),
	}
}

func toolGetSnapshotForEvent() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_snapshot_for_event",
		Description: "Snapshot linked to an event: exact trigger link preferred, else the nearest snapshot by timestamp within maxDeltaMs.",
		InputSchema: objectSchema(map[string]any{
			"eventId":    prop("string", "Event to resolve"),
			"maxDeltaMs": prop("number", "Fallback window in ms (default 10000)"),
		}, "eventId"),
	}
}

func toolGetSnapshotAsset() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_snapshot_asset",
		Description: "Read a snapshot's PNG in bounded chunks (default 64 KiB, max 256 KiB) as base64 or a raw byte array.",
		InputSchema: objectSchema(map[string]any{
			"snapshotId": prop("string", "Snapshot to read"),
			"offset":     prop("number", "Byte offset to start from"),
			"length":     prop("number", "Chunk size in bytes"),
			"encoding": map[string]any{
				"type": "string",
				"enum": []string{"base64", "bytes"},
			},
		}, "snapshotId"),
	}
}

func toolGetDOMSubtree() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_dom_subtree",
		Description: "Capture the live DOM subtree under a selector from the connected agent.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session whose agent performs the capture"),
			"selector":  prop("string", "Root of the subtree"),
			"maxDepth":  prop("number", "Depth budget (default 10)"),
			"maxBytes":  prop("number", "Serialized size budget (default 262144)"),
		}, "sessionId", "selector"),
	}
}

func toolGetDOMDocument() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_dom_document",
		Description: "Capture the live document HTML; falls back to a structural outline when the full document times out.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session whose agent performs the capture"),
			"maxBytes":  prop("number", "Serialized size budget (default 262144)"),
		}, "sessionId"),
	}
}

func toolGetComputedStyles() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_computed_styles",
		Description: "Capture computed styles for the first element matching a selector.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session whose agent performs the capture"),
			"selector":  prop("string", "Element to inspect"),
			"properties": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Restrict to these CSS properties",
			},
		}, "sessionId", "selector"),
	}
}

func toolGetLayoutMetrics() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_layout_metrics",
		Description: "Capture viewport and layout metrics, optionally scoped to one selector.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session whose agent performs the capture"),
			"selector":  prop("string", "Optional element scope"),
		}, "sessionId"),
	}
}

func toolCaptureUISnapshot() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "capture_ui_snapshot",
		Description: "Capture and persist a UI snapshot (DOM, styles, optional PNG). computed-full styles require explicitStyleMode=true or the capture silently downgrades to computed-lite.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session whose agent performs the capture"),
			"selector":  prop("string", "Optional element scope"),
			"trigger": map[string]any{
				"type": "string",
				"enum": []string{"click", "manual", "navigation", "error"},
			},
			"mode": map[string]any{
				"type": "string",
				"enum": []string{"dom", "png", "both"},
			},
			"styleMode": map[string]any{
				"type": "string",
				"enum": []string{"computed-lite", "computed-full"},
			},
			"explicitStyleMode": prop("boolean", "Must be true to keep styleMode computed-full"),
		}, "sessionId"),
	}
}

func toolGetLiveConsoleLogs() mcp.MCPTool {
	return mcp.MCPTool{
		Name:        "get_live_console_logs",
		Description: "Query the live console ring. Served by the connected agent; falls back to the server-side mirror when the agent is disconnected.",
		InputSchema: objectSchema(map[string]any{
			"sessionId": prop("string", "Session to query"),
			"tabId":     prop("number", "Restrict to one tab"),
			"origin":    prop("string", "Restrict to one origin"),
			"levels": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"contains":             prop("string", "Message substring filter"),
			"sinceTimestamp":       prop("number", "Only entries at or after this ms timestamp"),
			"excludeRuntimeErrors": prop("boolean", "Drop runtime-error entries"),
			"limit":                prop("number", "Max entries (default 100, max 500)"),
		}, "sessionId"),
	}
}
