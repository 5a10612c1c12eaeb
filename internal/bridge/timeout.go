// timeout.go - Per-request watchdog timeouts for the stdio loop.
package bridge

import (
	"encoding/json"
	"time"
)

const (
	// FastTimeout covers database-backed query tools.
	FastTimeout = 10 * time.Second
	// LiveTimeout covers tools that round-trip a capture command to the
	// browser agent; it sits above every capture deadline so the capture
	// timeout message, not the watchdog, reaches the caller.
	LiveTimeout = 20 * time.Second
)

// liveTools round-trip to the agent and get the longer watchdog.
var liveTools = map[string]bool{
	"get_dom_subtree":       true,
	"get_dom_document":      true,
	"get_computed_styles":   true,
	"get_layout_metrics":    true,
	"capture_ui_snapshot":   true,
	"get_live_console_logs": true,
}

// ToolCallTimeout returns the watchdog timeout for one JSON-RPC request.
func ToolCallTimeout(method string, params json.RawMessage) time.Duration {
	if method != "tools/call" {
		return FastTimeout
	}
	var p struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(params, &p) != nil {
		return FastTimeout
	}
	if liveTools[p.Name] {
		return LiveTimeout
	}
	return FastTimeout
}
