// correlate.go - Failure explanation and event correlation tools.
// Both build a time window around an anchor and weigh nearby events by kind
// affinity and temporal proximity.
package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/store"
)

const (
	defaultLookbackSeconds = 30
	defaultWindowSeconds   = 5
	maxWindowSeconds       = 60
	maxCorrelationResults  = 50

	// Proximity thresholds for root-cause classification.
	networkCauseWindowMs = 5_000
	uiTriggerWindowMs    = 10_000
)

// timelineEntry is one unified row of the failure timeline.
type timelineEntry struct {
	Source    string               `json:"source"` // "event" or "network"
	Timestamp int64                `json:"timestamp"`
	DeltaMs   int64                `json:"deltaMs"`
	Event     *store.Event         `json:"event,omitempty"`
	Network   *store.NetworkRecord `json:"network,omitempty"`
}

func explainLastFailure(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID       string `json:"sessionId"`
		LookbackSeconds int    `json:"lookbackSeconds"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	lookback := params.LookbackSeconds
	if lookback <= 0 {
		lookback = defaultLookbackSeconds
	}
	sessionID := store.SessionID(params.SessionID)

	lastError, err := d.Store.LatestEventOfKind(sessionID, store.KindError)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	lastNetFail, err := d.Store.LatestNetworkFailure(sessionID)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	if lastError == nil && lastNetFail == nil {
		return respond(sessionID, LimitsApplied{MaxResults: 0, Truncated: false}, map[string]any{
			"found":    false,
			"rootCause": "no_failures_recorded",
		})
	}

	// Anchor on whichever failure is later.
	var anchorTs int64
	var anchorKind string
	var anchorEventID store.EventID
	if lastError != nil {
		anchorTs = lastError.Timestamp
		anchorKind = store.KindError
		anchorEventID = lastError.ID
	}
	if lastNetFail != nil && lastNetFail.StartTS > anchorTs {
		anchorTs = lastNetFail.StartTS
		anchorKind = store.KindNetwork
		anchorEventID = ""
	}

	windowMs := int64(lookback) * 1000
	events, err := d.Store.EventsInWindow(sessionID, anchorTs, windowMs, anchorEventID)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	netFailures, err := d.Store.NetworkFailuresInWindow(sessionID, anchorTs, windowMs)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	timeline := make([]timelineEntry, 0, len(events)+len(netFailures))
	for i := range events {
		ev := events[i]
		timeline = append(timeline, timelineEntry{
			Source: "event", Timestamp: ev.Timestamp, DeltaMs: ev.Timestamp - anchorTs, Event: &ev,
		})
	}
	for i := range netFailures {
		rec := netFailures[i]
		if anchorKind == store.KindNetwork && rec.StartTS == anchorTs && lastNetFail != nil && rec.ID == lastNetFail.ID {
			continue
		}
		timeline = append(timeline, timelineEntry{
			Source: "network", Timestamp: rec.StartTS, DeltaMs: rec.StartTS - anchorTs, Network: &rec,
		})
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Timestamp < timeline[j].Timestamp })

	rootCause := classifyRootCause(anchorKind, anchorTs, timeline)

	anchor := map[string]any{"kind": anchorKind, "timestamp": anchorTs}
	if anchorKind == store.KindError && lastError != nil {
		anchor["event"] = lastError
	} else if lastNetFail != nil {
		anchor["network"] = lastNetFail
	}

	return respond(sessionID, LimitsApplied{MaxResults: len(timeline), Truncated: false}, map[string]any{
		"found":     true,
		"anchor":    anchor,
		"timeline":  timeline,
		"rootCause": rootCause,
	})
}

// classifyRootCause applies the proximity heuristics: a network failure within
// 5 s before the anchor wins, then a UI action within 10 s, else unclassified.
func classifyRootCause(anchorKind string, anchorTs int64, timeline []timelineEntry) string {
	for _, entry := range timeline {
		if entry.Source != "network" || entry.DeltaMs > 0 || entry.DeltaMs < -networkCauseWindowMs {
			continue
		}
		if anchorKind == store.KindNetwork && entry.DeltaMs == 0 {
			continue
		}
		url := ""
		if entry.Network != nil {
			url = entry.Network.URL
		}
		return fmt.Sprintf("network failure %s within %ds before the %s", url,
			networkCauseWindowMs/1000, anchorKind)
	}
	for _, entry := range timeline {
		if entry.Source != "event" || entry.Event == nil || entry.Event.Kind != store.KindUI {
			continue
		}
		if entry.DeltaMs > 0 || entry.DeltaMs < -uiTriggerWindowMs {
			continue
		}
		action, _ := entry.Event.Payload["action"].(string)
		if action == "" {
			action, _ = entry.Event.Payload["type"].(string)
		}
		if action == "" {
			action = "interaction"
		}
		return fmt.Sprintf("ui %s within %ds before the %s", action,
			uiTriggerWindowMs/1000, anchorKind)
	}
	return "unclassified"
}

// correlationCandidate is one scored neighbor of the anchor event.
type correlationCandidate struct {
	Source           string               `json:"source"`
	Timestamp        int64                `json:"timestamp"`
	DeltaMs          int64                `json:"deltaMs"`
	CorrelationScore float64              `json:"correlationScore"`
	Relationship     string               `json:"relationship"`
	Event            *store.Event         `json:"event,omitempty"`
	Network          *store.NetworkRecord `json:"network,omitempty"`
}

func getEventCorrelation(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		EventID       string `json:"eventId"`
		WindowSeconds int    `json:"windowSeconds"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.EventID, "eventId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	window := params.WindowSeconds
	if window <= 0 {
		window = defaultWindowSeconds
	}
	if window > maxWindowSeconds {
		window = maxWindowSeconds
	}

	anchor, err := d.Store.GetEvent(store.EventID(params.EventID))
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSessionNotFound, "%v", err))
	}

	windowMs := int64(window) * 1000
	events, err := d.Store.EventsInWindow(anchor.SessionID, anchor.Timestamp, windowMs, anchor.ID)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	netFailures, err := d.Store.NetworkFailuresInWindow(anchor.SessionID, anchor.Timestamp, windowMs)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	candidates := make([]correlationCandidate, 0, len(events)+len(netFailures))
	for i := range events {
		ev := events[i]
		delta := ev.Timestamp - anchor.Timestamp
		candidates = append(candidates, correlationCandidate{
			Source:           "event",
			Timestamp:        ev.Timestamp,
			DeltaMs:          delta,
			CorrelationScore: correlationScore(anchor.Kind, ev.Kind, delta, windowMs),
			Relationship:     relationship(anchor.Kind, ev.Kind, delta),
			Event:            &ev,
		})
	}
	for i := range netFailures {
		rec := netFailures[i]
		delta := rec.StartTS - anchor.Timestamp
		candidates = append(candidates, correlationCandidate{
			Source:           "network",
			Timestamp:        rec.StartTS,
			DeltaMs:          delta,
			CorrelationScore: correlationScore(anchor.Kind, store.KindNetwork, delta, windowMs),
			Relationship:     relationship(anchor.Kind, store.KindNetwork, delta),
			Network:          &rec,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CorrelationScore != candidates[j].CorrelationScore {
			return candidates[i].CorrelationScore > candidates[j].CorrelationScore
		}
		return absInt64(candidates[i].DeltaMs) < absInt64(candidates[j].DeltaMs)
	})

	truncated := len(candidates) > maxCorrelationResults
	if truncated {
		candidates = candidates[:maxCorrelationResults]
	}

	return respond(anchor.SessionID,
		LimitsApplied{MaxResults: maxCorrelationResults, Truncated: truncated}, map[string]any{
			"anchor":     anchor,
			"candidates": candidates,
		})
}

// correlationScore combines a kind-affinity weight with temporal decay:
// 0.7 x semantic + 0.3 x (1 - |delta|/window).
func correlationScore(anchorKind, candidateKind string, deltaMs, windowMs int64) float64 {
	decay := 1 - float64(absInt64(deltaMs))/float64(windowMs)
	if decay < 0 {
		decay = 0
	}
	score := 0.7*semanticWeight(anchorKind, candidateKind) + 0.3*decay
	return math.Round(score*1000) / 1000
}

// semanticWeight encodes how strongly two kinds tend to relate.
func semanticWeight(a, b string) float64 {
	failure := func(k string) bool { return k == store.KindError || k == store.KindNetwork }
	switch {
	case a == store.KindUI && failure(b):
		return 0.85
	case failure(a) && failure(b):
		return 0.9
	case failure(a) && b == store.KindUI:
		return 0.75
	case a == store.KindNav || b == store.KindNav:
		return 0.6
	default:
		return 0.45
	}
}

// relationship labels a candidate by kind pair and which side of the anchor
// it falls on.
func relationship(anchorKind, candidateKind string, deltaMs int64) string {
	failure := func(k string) bool { return k == store.KindError || k == store.KindNetwork }
	before := deltaMs < 0
	switch {
	case candidateKind == store.KindUI && failure(anchorKind) && before:
		return "likely_trigger"
	case candidateKind == store.KindUI && failure(anchorKind):
		return "subsequent_interaction"
	case failure(candidateKind) && anchorKind == store.KindUI && !before:
		return "likely_effect"
	case failure(candidateKind) && failure(anchorKind) && before:
		return "preceding_failure"
	case failure(candidateKind) && failure(anchorKind):
		return "subsequent_failure"
	case candidateKind == store.KindNav && before:
		return "preceding_navigation"
	case candidateKind == store.KindNav:
		return "subsequent_navigation"
	case before:
		return "preceding_activity"
	default:
		return "subsequent_activity"
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
