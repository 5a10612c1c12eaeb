// snapshots.go - Snapshot listing, lookup, and chunked asset reads.
package tools

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/store"
)

const (
	defaultSnapshotLimit = 25

	// Asset chunk bounds.
	defaultAssetChunkBytes = 64 * 1024
	maxAssetChunkBytes     = 256 * 1024

	// Default trigger-event fallback window.
	defaultSnapshotDeltaMs = 10_000
)

func listSnapshots(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SessionID string `json:"sessionId"`
		Limit     int    `json:"limit"`
		Offset    int    `json:"offset"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SessionID, "sessionId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	limit := mcp.ClampLimit(params.Limit, defaultSnapshotLimit)

	rows, err := d.Store.ListSnapshots(store.SessionID(params.SessionID), limit+1, params.Offset)
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	n, truncated := trimPage(len(rows), limit)

	return respond(store.SessionID(params.SessionID),
		LimitsApplied{MaxResults: limit, Truncated: truncated}, map[string]any{
			"snapshots": page(rows, n),
		})
}

func getSnapshotForEvent(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		EventID    string `json:"eventId"`
		MaxDeltaMs int64  `json:"maxDeltaMs"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.EventID, "eventId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	maxDelta := params.MaxDeltaMs
	if maxDelta <= 0 {
		maxDelta = defaultSnapshotDeltaMs
	}

	snap, err := d.Store.SnapshotForEvent(store.EventID(params.EventID), maxDelta)
	if err != nil {
		if strings.Contains(err.Error(), "no snapshot within") {
			return respond("", LimitsApplied{MaxResults: 1, Truncated: false}, map[string]any{
				"found": false,
			})
		}
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}
	return respond(snap.SessionID, LimitsApplied{MaxResults: 1, Truncated: false}, map[string]any{
		"found":    true,
		"snapshot": snap,
	})
}

func getSnapshotAsset(d *Deps, args json.RawMessage) json.RawMessage {
	var params struct {
		SnapshotID string `json:"snapshotId"`
		Offset     int64  `json:"offset"`
		Length     int64  `json:"length"`
		Encoding   string `json:"encoding"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mcp.ToolErrorResponse(mcp.InvalidInput("malformed arguments: %v", err))
	}
	if err := mcp.RequireString(params.SnapshotID, "snapshotId"); err != nil {
		return mcp.ToolErrorResponse(err)
	}
	if params.Offset < 0 {
		return mcp.ToolErrorResponse(mcp.InvalidInput("offset must be non-negative"))
	}
	switch params.Encoding {
	case "", "base64", "bytes":
	default:
		return mcp.ToolErrorResponse(mcp.InvalidInput("encoding must be base64 or bytes"))
	}
	length := params.Length
	if length <= 0 {
		length = defaultAssetChunkBytes
	}
	if length > maxAssetChunkBytes {
		length = maxAssetChunkBytes
	}

	snap, err := d.Store.GetSnapshot(store.SnapshotID(params.SnapshotID))
	if err != nil {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSessionNotFound, "%v", err))
	}
	if snap.PNGPath == "" {
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSnapshotAssetMissing,
			"snapshot %s has no binary asset", snap.ID))
	}

	chunk, total, err := d.Store.ReadSnapshotAsset(snap.ID, params.Offset, length)
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindSnapshotAssetMissing, "%v", err))
		}
		return mcp.ToolErrorResponse(mcp.NewToolError(mcp.KindInternal, "%v", err))
	}

	fields := map[string]any{
		"snapshotId": snap.ID,
		"offset":     params.Offset,
		"length":     len(chunk),
		"totalBytes": total,
		"mime":       snap.PNGMime,
		"eof":        params.Offset+int64(len(chunk)) >= total,
	}
	if params.Encoding == "bytes" {
		// Emit a JSON number array; []byte would marshal as base64.
		ints := make([]int, len(chunk))
		for i, b := range chunk {
			ints[i] = int(b)
		}
		fields["bytes"] = ints
	} else {
		fields["base64"] = base64.StdEncoding.EncodeToString(chunk)
	}

	return respond(snap.SessionID, LimitsApplied{MaxResults: int(length), Truncated: false}, fields)
}
