// live_test.go - Agent round-trip tools: deadlines, fallbacks, safe mode.
package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firelens/firelens/internal/ingest"
	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
)

func TestGetDOMSubtreeRequiredFields(t *testing.T) {
	d, _ := newDeps(t)

	msg := toolErrorOf(t, getDOMSubtree(d, args(t, map[string]any{"selector": "#x"})))
	require.Equal(t, "INVALID_INPUT: missing required field: sessionId", msg)

	msg = toolErrorOf(t, getDOMSubtree(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "INVALID_INPUT: missing required field: selector", msg)
}

func TestGetDOMSubtreeDefaults(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(replyWith(`{"tag":"div"}`))

	env := envelopeOf(t, getDOMSubtree(d, args(t, map[string]any{
		"sessionId": "sess-a", "selector": "#root",
	})))
	require.Equal(t, "sess-a", env["sessionId"])
	require.Equal(t, map[string]any{"tag": "div"}, env["subtree"])

	require.Len(t, capturer.calls, 1)
	call := capturer.calls[0]
	require.Equal(t, ingest.CmdCaptureDOMSubtree, call.Command)
	require.Equal(t, domCaptureTimeout, call.Timeout)
	require.Equal(t, "#root", call.Payload["selector"])
	require.Equal(t, defaultDOMDepth, call.Payload["maxDepth"])
	require.Equal(t, defaultDOMBytesBudget, call.Payload["maxBytes"])
}

func TestCaptureTimeoutSurfacesVerbatim(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(failWith("Capture command timed out after 3000ms"))

	msg := toolErrorOf(t, getComputedStyles(d, args(t, map[string]any{
		"sessionId": "sess-a", "selector": "#x",
	})))
	// No kind prefix on capture deadline failures.
	require.Equal(t, "Capture command timed out after 3000ms", msg)
}

func TestDisconnectErrorsAreNormalized(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(failWith("write: broken pipe"))

	msg := toolErrorOf(t, getLayoutMetrics(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "LIVE_SESSION_DISCONNECTED: write: broken pipe", msg)
}

func TestGetDOMDocumentOutlineFallback(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(
		failWith("Capture command timed out after 4000ms"),
		replyWith(`{"outline":["html","body"]}`),
	)

	env := envelopeOf(t, getDOMDocument(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "outline", env["format"])
	require.Equal(t, true, env["fallback"])

	require.Len(t, capturer.calls, 2)
	require.Equal(t, "html", capturer.calls[0].Payload["format"])
	require.Equal(t, "outline", capturer.calls[1].Payload["format"])
}

func TestGetDOMDocumentFallbackFailureKeepsTimeout(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(
		failWith("Capture command timed out after 4000ms"),
		failWith("session sess-a is not connected"),
	)

	// The original timeout, not the retry failure, reaches the caller.
	msg := toolErrorOf(t, getDOMDocument(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "Capture command timed out after 4000ms", msg)
}

func TestGetDOMDocumentNonTimeoutFailureSkipsRetry(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(failWith("session sess-a is not connected"))

	msg := toolErrorOf(t, getDOMDocument(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "LIVE_SESSION_DISCONNECTED: session sess-a is not connected", msg)
	require.Len(t, capturer.calls, 1)
}

func TestCaptureUISnapshotDefaultsAndPersists(t *testing.T) {
	d, capturer := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	capturer.script(replyWith(`{"dom":{"tag":"main"},"url":"https://app.example.com/page"}`))

	env := envelopeOf(t, captureUISnapshot(d, args(t, map[string]any{"sessionId": string(sess)})))
	require.NotNil(t, env["snapshot"])

	call := capturer.calls[0]
	require.Equal(t, ingest.CmdCaptureUISnapshot, call.Command)
	require.Equal(t, "manual", call.Payload["trigger"])
	require.Equal(t, "dom", call.Payload["mode"])
	require.Equal(t, "computed-lite", call.Payload["styleMode"])

	snaps, err := d.Store.ListSnapshots(sess, 10, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "manual", snaps[0].Trigger)
	require.Equal(t, "https://app.example.com/page", snaps[0].URL)
}

func TestCaptureUISnapshotComputedFullGate(t *testing.T) {
	d, capturer := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)

	// Without the explicit flag, computed-full silently downgrades.
	capturer.script(replyWith(`{"dom":{}}`))
	envelopeOf(t, captureUISnapshot(d, args(t, map[string]any{
		"sessionId": string(sess), "styleMode": "computed-full",
	})))
	require.Equal(t, "computed-lite", capturer.calls[0].Payload["styleMode"])

	capturer.script(replyWith(`{"dom":{}}`))
	envelopeOf(t, captureUISnapshot(d, args(t, map[string]any{
		"sessionId": string(sess), "styleMode": "computed-full", "explicitStyleMode": true,
	})))
	require.Equal(t, "computed-full", capturer.calls[1].Payload["styleMode"])
}

func TestCaptureUISnapshotSafeMode(t *testing.T) {
	d, capturer := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{
		ID: "sess-safe", URL: "https://app.example.com", SafeMode: true,
	}, 1000)

	msg := toolErrorOf(t, captureUISnapshot(d, args(t, map[string]any{
		"sessionId": string(sess), "trigger": "click",
	})))
	require.Contains(t, msg, "safe mode")

	msg = toolErrorOf(t, captureUISnapshot(d, args(t, map[string]any{
		"sessionId": string(sess), "mode": "png",
	})))
	require.Contains(t, msg, "safe mode")

	// Manual DOM capture with lite styles is still allowed.
	capturer.script(replyWith(`{"dom":{}}`))
	envelopeOf(t, captureUISnapshot(d, args(t, map[string]any{"sessionId": string(sess)})))
}

func TestCaptureUISnapshotUnknownSession(t *testing.T) {
	d, _ := newDeps(t)
	msg := toolErrorOf(t, captureUISnapshot(d, args(t, map[string]any{"sessionId": "sess-missing"})))
	require.Contains(t, msg, "SESSION_NOT_FOUND")
}

func TestGetLiveConsoleLogsFromAgent(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(replyWith(`[{"level":"warn","message":"slow frame"}]`))

	env := envelopeOf(t, getLiveConsoleLogs(d, args(t, map[string]any{
		"sessionId": "sess-a", "tabId": 3, "contains": "slow",
	})))
	require.Equal(t, "agent", env["source"])
	require.NotNil(t, env["logs"])

	call := capturer.calls[0]
	require.Equal(t, ingest.CmdCaptureLiveConsoleLogs, call.Command)
	require.Equal(t, 3, call.Payload["tabId"])
	require.Equal(t, "slow", call.Payload["contains"])
}

func registryEntry(message string) registry.ConsoleEntry {
	return registry.ConsoleEntry{Timestamp: 1000, Level: "log", Message: message}
}

func TestGetLiveConsoleLogsServerFallback(t *testing.T) {
	d, _ := newDeps(t)

	buffer := d.Registry.Console("sess-a")
	for _, msg := range []string{"first", "second", "slow paint"} {
		buffer.Append(registryEntry(msg))
	}

	// The default capturer reports a disconnected agent.
	env := envelopeOf(t, getLiveConsoleLogs(d, args(t, map[string]any{
		"sessionId": "sess-a", "contains": "slow",
	})))
	require.Equal(t, "server_buffer", env["source"])
	entries := env["entries"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, float64(1), env["matched"])
	require.Equal(t, float64(3), env["buffered"])
}

func TestGetLiveConsoleLogsTabIDValidation(t *testing.T) {
	d, _ := newDeps(t)
	msg := toolErrorOf(t, getLiveConsoleLogs(d, args(t, map[string]any{
		"sessionId": "sess-a", "tabId": "three",
	})))
	require.Equal(t, "INVALID_INPUT: tabId must be an integer", msg)
}

func TestGetLiveConsoleLogsLimitClamp(t *testing.T) {
	d, capturer := newDeps(t)
	capturer.script(replyWith(`[]`))

	envelopeOf(t, getLiveConsoleLogs(d, args(t, map[string]any{
		"sessionId": "sess-a", "limit": 9999,
	})))
	require.Equal(t, 500, capturer.calls[0].Payload["limit"])
}
