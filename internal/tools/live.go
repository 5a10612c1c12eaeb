// live.go - Tools that round-trip a capture command to the browser agent.
// Each tool sends one command through the ingest pipeline and blocks until the
// agent answers or the per-command deadline fires. Transport failures are
// normalized onto LIVE_SESSION_DISCONNECTED.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/firelens/firelens/internal/ingest"
	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
)

// Per-command capture deadlines.
const (
	domCaptureTimeout     = 4 * time.Second
	stylesCaptureTimeout  = 3 * time.Second
	layoutCaptureTimeout  = 3 * time.Second
	uiSnapshotTimeout     = 5 * time.Second
	liveConsoleTimeout    = 3 * time.Second
	defaultDOMDepth       = 10
	defaultDOMBytesBudget = 256 * 1024
)

// liveCapture runs one capture round-trip and normalizes the error.
func liveCapture(d *Deps, sessionID store.SessionID, command string, payload any, timeout time.Duration) (json.RawMessage, bool, error) {
	raw, truncated, err := d.Capture.SendCapture(context.Background(), sessionID, command, payload, timeout)
	if err != nil {
		return nil, false, mcp.NormalizeLiveError(err)
	}
	return raw, truncated, nil
}

func getDOMSubtree(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		Selector  string `json:"selector"`
		MaxDepth  int    `json:"maxDepth"`
		MaxBytes  int    `json:"maxBytes"`
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
	if params.MaxDepth <= 0 {
		params.MaxDepth = defaultDOMDepth
	}
	if params.MaxBytes <= 0 {
		params.MaxBytes = defaultDOMBytesBudget
	}

	sessionID := store.SessionID(params.SessionID)
	payload := map[string]any{
		"selector": params.Selector,
		"maxDepth": params.MaxDepth,
		"maxBytes": params.MaxBytes,
	}
	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureDOMSubtree, payload, domCaptureTimeout)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	return respond(sessionID, LimitsApplied{MaxResults: params.MaxBytes, Truncated: truncated}, map[string]any{
		"subtree": raw,
	})
}

func getDOMDocument(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		MaxBytes  int    `json:"maxBytes"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if params.MaxBytes <= 0 {
		params.MaxBytes = defaultDOMBytesBudget
	}
	sessionID := store.SessionID(params.SessionID)

	payload := map[string]any{"format": "html", "maxBytes": params.MaxBytes}
	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureDOMDocument, payload, domCaptureTimeout)
	if err == nil {
		return respond(sessionID, LimitsApplied{MaxResults: params.MaxBytes, Truncated: truncated}, map[string]any{
			"document": raw,
			"format":   "html",
		})
	}
	if !mcp.IsCaptureTimeout(err) {
		return mcp.ToolErrorResponse(err)
	}

	// Full HTML did not make it back in time; ask for the cheaper outline.
	payload["format"] = "outline"
	raw, truncated, retryErr := liveCapture(d, sessionID, ingest.CmdCaptureDOMDocument, payload, domCaptureTimeout)
	if retryErr != nil {
		return mcp.ToolErrorResponse(err)
	}
	return respond(sessionID, LimitsApplied{MaxResults: params.MaxBytes, Truncated: truncated}, map[string]any{
		"document": raw,
		"format":   "outline",
		"fallback": true,
	})
}

func getComputedStyles(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID  string   `json:"sessionId"`
		Selector   string   `json:"selector"`
		Properties []string `json:"properties"`
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
	sessionID := store.SessionID(params.SessionID)

	payload := map[string]any{"selector": params.Selector}
	if len(params.Properties) > 0 {
		payload["properties"] = params.Properties
	}
	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureComputedStyles, payload, stylesCaptureTimeout)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	return respond(sessionID, LimitsApplied{MaxResults: 1, Truncated: truncated}, map[string]any{
		"styles": raw,
	})
}

func getLayoutMetrics(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		Selector  string `json:"selector"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	sessionID := store.SessionID(params.SessionID)

	payload := map[string]any{}
	if params.Selector != "" {
		payload["selector"] = params.Selector
	}
	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureLayoutMetrics, payload, layoutCaptureTimeout)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	return respond(sessionID, LimitsApplied{MaxResults: 1, Truncated: truncated}, map[string]any{
		"metrics": raw,
	})
}

func captureUISnapshot(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID         string `json:"sessionId"`
		Trigger           string `json:"trigger"`
		Selector          string `json:"selector"`
		Mode              string `json:"mode"`
		StyleMode         string `json:"styleMode"`
		ExplicitStyleMode bool   `json:"explicitStyleMode"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	sessionID := store.SessionID(params.SessionID)

	if params.Trigger == "" {
		params.Trigger = "manual"
	}
	if params.Mode == "" {
		params.Mode = "dom"
	}
	if params.StyleMode == "" {
		params.StyleMode = "computed-lite"
	}
	// computed-full must be asked for explicitly; otherwise downgrade quietly.
	if params.StyleMode == "computed-full" && !params.ExplicitStyleMode {
		params.StyleMode = "computed-lite"
	}

	sess, err := d.Store.GetSession(sessionID)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSessionNotFound, "%v", err))
	}
	// Safe-mode sessions only permit manual DOM captures with lite styles.
	if sess.SafeMode {
		if params.Trigger != "manual" {
			return mcp.ToolErrorResponse(mcp.InvalidInput(
				"session %s is in safe mode; only trigger=manual is permitted", sessionID))
		}
		if params.StyleMode == "computed-full" {
			return mcp.ToolErrorResponse(mcp.InvalidInput(
				"session %s is in safe mode; styleMode computed-full is not permitted", sessionID))
		}
		if params.Mode != "dom" {
			return mcp.ToolErrorResponse(mcp.InvalidInput(
				"session %s is in safe mode; only mode=dom is permitted", sessionID))
		}
	}

	payload := map[string]any{
		"trigger":   params.Trigger,
		"mode":      params.Mode,
		"styleMode": params.StyleMode,
	}
	if params.Selector != "" {
		payload["selector"] = params.Selector
	}
	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureUISnapshot, payload, uiSnapshotTimeout)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "malformed capture result: %v", err))
	}

	in := store.SnapshotInput{
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Trigger:   params.Trigger,
		Selector:  params.Selector,
		Mode:      params.Mode,
		StyleMode: params.StyleMode,
		DOM:       result["dom"],
		Styles:    result["styles"],
	}
	if url, ok := result["url"].(string); ok {
		in.URL = url
	}
	if png, ok := result["png"].(string); ok {
		in.PNGDataURL = png
	}

	snapID, err := d.Store.InsertSnapshot(in)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSnapshotSizeExceeded, "%v", err))
	}
	snap, err := d.Store.GetSnapshot(snapID)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	return respond(sessionID, LimitsApplied{MaxResults: 1, Truncated: truncated}, map[string]any{
		"snapshot": snap,
	})
}

func getLiveConsoleLogs(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID            string          `json:"sessionId"`
		TabID                json.RawMessage `json:"tabId"`
		Origin               string          `json:"origin"`
		Levels               []string        `json:"levels"`
		Contains             string          `json:"contains"`
		SinceTimestamp       int64           `json:"sinceTimestamp"`
		ExcludeRuntimeErrors bool            `json:"excludeRuntimeErrors"`
		Limit                int             `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	tabID, err := mcp.ParseTabID(params.TabID)
	if err != nil {
		return mcp.ToolErrorResponse(err)
	}
	sessionID := store.SessionID(params.SessionID)

	limit := params.Limit
	if limit <= 0 {
		limit = registry.DefaultConsoleQueryLimit
	}
	if limit > registry.MaxConsoleQueryLimit {
		limit = registry.MaxConsoleQueryLimit
	}

	// Filtering and paging run at the agent so its ring, not ours, is the
	// source of truth while the session is live.
	payload := map[string]any{
		"levels":               params.Levels,
		"contains":             params.Contains,
		"sinceTimestamp":       params.SinceTimestamp,
		"excludeRuntimeErrors": params.ExcludeRuntimeErrors,
		"limit":                limit,
	}
	if tabID != nil {
		payload["tabId"] = *tabID
	}
	if params.Origin != "" {
		payload["origin"] = params.Origin
	}

	raw, truncated, err := liveCapture(d, sessionID, ingest.CmdCaptureLiveConsoleLogs, payload, liveConsoleTimeout)
	if err == nil {
		return respond(sessionID, LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"source": "agent",
			"logs":   raw,
		})
	}

	toolErr, ok := err.(*mcp.ToolError)
	if !ok || toolErr.Kind != mcp.KindLiveDisconnected {
		return mcp.ToolErrorResponse(err)
	}

	// Agent gone; serve the server-side mirror of the ring.
	query := registry.ConsoleQuery{
		TabID:            tabID,
		Origin:           params.Origin,
		Levels:           params.Levels,
		Contains:         params.Contains,
		SinceTimestamp:   params.SinceTimestamp,
		ExcludeRuntimeEr: params.ExcludeRuntimeErrors,
		Limit:            limit,
	}
	res := d.Registry.Console(sessionID).Query(query)
	return respond(sessionID, LimitsApplied{MaxResults: limit, Truncated: res.Matched > len(res.Entries)}, map[string]any{
		"source":   "server_buffer",
		"entries":  res.Entries,
		"matched":  res.Matched,
		"buffered": res.Buffered,
		"dropped":  res.Dropped,
	})
}
