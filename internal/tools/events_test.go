// events_test.go - SQL-backed query tools: scope, paging, level filtering.
package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firelens/firelens/internal/store"
)

func seedEvents(t *testing.T, d *Deps, sess store.SessionID, events []store.IngestEvent) []store.EventID {
	t.Helper()
	ids, err := d.Store.InsertEventBatch(events)
	require.NoError(t, err)
	return ids
}

func TestParseScope(t *testing.T) {
	_, err := parseScope("", "")
	require.EqualError(t, err, "INVALID_INPUT: either sessionId or url is required")

	_, err = parseScope("", "not-a-url")
	require.EqualError(t, err, "INVALID_INPUT: url must be a valid absolute http(s) URL")

	scope, err := parseScope("sess-a", "https://app.example.com/deep?x=1")
	require.NoError(t, err)
	require.Equal(t, store.SessionID("sess-a"), scope.SessionID)
	require.Equal(t, "https://app.example.com", scope.Origin)
}

func TestGetRecentEventsRequiresScope(t *testing.T) {
	d, _ := newDeps(t)
	msg := toolErrorOf(t, getRecentEvents(d, args(t, map[string]any{})))
	require.Equal(t, "INVALID_INPUT: either sessionId or url is required", msg)
}

func TestGetRecentEventsRejectsUnknownKind(t *testing.T) {
	d, _ := newDeps(t)
	msg := toolErrorOf(t, getRecentEvents(d, args(t, map[string]any{
		"sessionId": "sess-a", "kinds": []string{"console", "hologram"},
	})))
	require.Equal(t, "INVALID_INPUT: unknown event kind: hologram", msg)
}

func TestGetRecentEventsPaging(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "console", Timestamp: 1100, Data: map[string]any{"level": "log", "message": "one"}},
		{SessionID: sess, EventType: "console", Timestamp: 1200, Data: map[string]any{"level": "warn", "message": "two"}},
		{SessionID: sess, EventType: "error", Timestamp: 1300, Data: map[string]any{"message": "boom"}},
	})

	env := envelopeOf(t, getRecentEvents(d, args(t, map[string]any{
		"sessionId": string(sess), "limit": 2,
	})))
	require.Equal(t, string(sess), env["sessionId"])
	maxResults, truncated := limitsOf(t, env)
	require.Equal(t, 2, maxResults)
	require.True(t, truncated)

	events := env["events"].([]any)
	require.Len(t, events, 2)
	// Newest first.
	first := events[0].(map[string]any)
	require.Equal(t, float64(1300), first["timestamp"])
}

func TestGetRecentEventsKindFilter(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "console", Timestamp: 1100, Data: map[string]any{"level": "log", "message": "one"}},
		{SessionID: sess, EventType: "error", Timestamp: 1200, Data: map[string]any{"message": "boom"}},
	})

	env := envelopeOf(t, getRecentEvents(d, args(t, map[string]any{
		"sessionId": string(sess), "kinds": []string{"error"},
	})))
	events := env["events"].([]any)
	require.Len(t, events, 1)
	require.Equal(t, store.KindError, events[0].(map[string]any)["type"])
}

func TestGetConsoleEventsLevelFilter(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "console", Timestamp: 1100, Data: map[string]any{"level": "log", "message": "fine"}},
		{SessionID: sess, EventType: "console", Timestamp: 1200, Data: map[string]any{"level": "warn", "message": "slow"}},
		{SessionID: sess, EventType: "console", Timestamp: 1300, Data: map[string]any{"level": "warn", "message": "slower"}},
	})

	env := envelopeOf(t, getConsoleEvents(d, args(t, map[string]any{
		"sessionId": string(sess), "level": "warn",
	})))
	events := env["events"].([]any)
	require.Len(t, events, 2)
	for _, ev := range events {
		payload := ev.(map[string]any)["payload"].(map[string]any)
		require.Equal(t, "warn", payload["level"])
	}
}

func TestGetNavigationHistory(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "navigation", Timestamp: 1100, Data: map[string]any{"url": "https://app.example.com/a"}},
		{SessionID: sess, EventType: "click", Timestamp: 1200, Data: map[string]any{"selector": "#x"}},
		{SessionID: sess, EventType: "navigation", Timestamp: 1300, Data: map[string]any{"url": "https://app.example.com/b"}},
	})

	env := envelopeOf(t, getNavigationHistory(d, args(t, map[string]any{"sessionId": string(sess)})))
	navs := env["navigations"].([]any)
	require.Len(t, navs, 2)
	require.Equal(t, store.KindNav, navs[0].(map[string]any)["type"])
}

func TestGetErrorFingerprintsAggregates(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "error", Timestamp: 1100, Data: map[string]any{"message": "TypeError: bad"}},
		{SessionID: sess, EventType: "error", Timestamp: 1200, Data: map[string]any{"message": "typeerror:  bad"}},
	})

	env := envelopeOf(t, getErrorFingerprints(d, args(t, map[string]any{"sessionId": string(sess)})))
	fps := env["fingerprints"].([]any)
	require.Len(t, fps, 1)
	require.Equal(t, float64(2), fps[0].(map[string]any)["count"])
}

func TestGetElementRefsRequiredFields(t *testing.T) {
	d, _ := newDeps(t)
	msg := toolErrorOf(t, getElementRefs(d, args(t, map[string]any{"selector": "#x"})))
	require.Equal(t, "INVALID_INPUT: missing required field: sessionId", msg)

	msg = toolErrorOf(t, getElementRefs(d, args(t, map[string]any{"sessionId": "sess-a"})))
	require.Equal(t, "INVALID_INPUT: missing required field: selector", msg)
}

func TestGetSessionSummary(t *testing.T) {
	d, _ := newDeps(t)

	msg := toolErrorOf(t, getSessionSummary(d, args(t, map[string]any{"sessionId": "sess-missing"})))
	require.Contains(t, msg, "SESSION_NOT_FOUND")

	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "error", Timestamp: 1100, Data: map[string]any{"message": "boom"}},
	})

	env := envelopeOf(t, getSessionSummary(d, args(t, map[string]any{"sessionId": string(sess)})))
	require.Equal(t, string(sess), env["sessionId"])
	summary := env["summary"].(map[string]any)
	require.Equal(t, float64(1), summary["errorCount"])
}

func TestListSessionsConnectionMetadata(t *testing.T) {
	d, _ := newDeps(t)
	mustSession(t, d, store.SessionMeta{ID: "sess-bound", URL: "https://app.example.com"}, 2000)
	mustSession(t, d, store.SessionMeta{ID: "sess-idle", URL: "https://app.example.com"}, 1000)
	d.Registry.BindConnection("sess-bound", openConn{})

	env := envelopeOf(t, listSessions(d, nil))
	_, hasSession := env["sessionId"]
	require.False(t, hasSession, "cross-session tool must not echo a sessionId")

	sessions := env["sessions"].([]any)
	require.Len(t, sessions, 2)

	// Newest first; only the bound session carries connection state.
	first := sessions[0].(map[string]any)
	require.Equal(t, "sess-bound", first["sessionId"])
	conn := first["connection"].(map[string]any)
	require.Equal(t, true, conn["connected"])

	second := sessions[1].(map[string]any)
	require.Equal(t, "sess-idle", second["sessionId"])
	_, hasConn := second["connection"]
	require.False(t, hasConn)
}

func TestGetNetworkFailures(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "network", Timestamp: 1100,
			Data: map[string]any{"url": "https://api.example.com/v1", "status": float64(500), "method": "GET"}},
		{SessionID: sess, EventType: "network", Timestamp: 1200,
			Data: map[string]any{"url": "https://api.example.com/v2", "status": float64(200), "method": "GET"}},
		{SessionID: sess, EventType: "network", Timestamp: 1300,
			Data: map[string]any{"url": "https://cdn.example.com/app.js", "errorType": "timeout", "method": "GET"}},
	})

	env := envelopeOf(t, getNetworkFailures(d, args(t, map[string]any{"sessionId": string(sess)})))
	failures := env["failures"].([]any)
	require.Len(t, failures, 2)

	env = envelopeOf(t, getNetworkFailures(d, args(t, map[string]any{
		"sessionId": string(sess), "errorType": "timeout",
	})))
	failures = env["failures"].([]any)
	require.Len(t, failures, 1)
}

func TestGetNetworkFailuresGrouped(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "network", Timestamp: 1100,
			Data: map[string]any{"url": "https://api.example.com/v1", "status": float64(500), "method": "GET"}},
		{SessionID: sess, EventType: "network", Timestamp: 1200,
			Data: map[string]any{"url": "https://api.example.com/v1", "status": float64(502), "method": "GET"}},
		{SessionID: sess, EventType: "network", Timestamp: 1300,
			Data: map[string]any{"url": "https://cdn.example.com/app.js", "status": float64(404), "method": "GET"}},
	})

	env := envelopeOf(t, getNetworkFailures(d, args(t, map[string]any{
		"sessionId": string(sess), "groupBy": "domain",
	})))
	require.Equal(t, "domain", env["groupBy"])
	groups := env["groups"].([]any)
	require.Len(t, groups, 2)
}

func TestGetNetworkFailuresValidation(t *testing.T) {
	d, _ := newDeps(t)

	msg := toolErrorOf(t, getNetworkFailures(d, args(t, map[string]any{
		"sessionId": "sess-a", "errorType": "martian",
	})))
	require.Equal(t, "INVALID_INPUT: unknown errorType: martian", msg)

	msg = toolErrorOf(t, getNetworkFailures(d, args(t, map[string]any{
		"sessionId": "sess-a", "groupBy": "martian",
	})))
	require.Equal(t, "INVALID_INPUT: groupBy must be one of url, domain, errorType", msg)
}
