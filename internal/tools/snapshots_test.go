// snapshots_test.go - Snapshot lookup tools and chunked asset reads.
package tools

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firelens/firelens/internal/store"
)

func seedSnapshot(t *testing.T, d *Deps, sess store.SessionID, triggerEvent *store.EventID, ts int64, png []byte) store.SnapshotID {
	t.Helper()
	in := store.SnapshotInput{
		SessionID:      sess,
		TriggerEventID: triggerEvent,
		Timestamp:      ts,
		Trigger:        "manual",
		Mode:           "both",
		DOM:            map[string]any{"tag": "main"},
	}
	if png != nil {
		in.PNGDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	id, err := d.Store.InsertSnapshot(in)
	require.NoError(t, err)
	return id
}

func snapshotPNG(filler string) []byte {
	return append(append([]byte{}, store.PNGMagic...), []byte(filler)...)
}

func TestListSnapshots(t *testing.T) {
	d, _ := newDeps(t)

	msg := toolErrorOf(t, listSnapshots(d, args(t, map[string]any{})))
	require.Equal(t, "INVALID_INPUT: missing required field: sessionId", msg)

	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	seedSnapshot(t, d, sess, nil, 1100, nil)
	seedSnapshot(t, d, sess, nil, 1200, nil)

	env := envelopeOf(t, listSnapshots(d, args(t, map[string]any{"sessionId": string(sess)})))
	snaps := env["snapshots"].([]any)
	require.Len(t, snaps, 2)
	// Newest first.
	require.Equal(t, float64(1200), snaps[0].(map[string]any)["timestamp"])
}

func TestGetSnapshotForEvent(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	ids := seedEvents(t, d, sess, []store.IngestEvent{
		{SessionID: sess, EventType: "click", Timestamp: 1100, Data: map[string]any{"selector": "#go"}},
	})

	env := envelopeOf(t, getSnapshotForEvent(d, args(t, map[string]any{"eventId": string(ids[0])})))
	require.Equal(t, false, env["found"])

	snapID := seedSnapshot(t, d, sess, &ids[0], 1150, nil)
	env = envelopeOf(t, getSnapshotForEvent(d, args(t, map[string]any{"eventId": string(ids[0])})))
	require.Equal(t, true, env["found"])
	snap := env["snapshot"].(map[string]any)
	require.Equal(t, string(snapID), snap["snapshotId"])
}

func TestGetSnapshotAssetChunks(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	png := snapshotPNG("0123456789")
	snapID := seedSnapshot(t, d, sess, nil, 1100, png)

	env := envelopeOf(t, getSnapshotAsset(d, args(t, map[string]any{"snapshotId": string(snapID)})))
	require.Equal(t, float64(len(png)), env["totalBytes"])
	require.Equal(t, "image/png", env["mime"])
	require.Equal(t, true, env["eof"])
	chunk, err := base64.StdEncoding.DecodeString(env["base64"].(string))
	require.NoError(t, err)
	require.Equal(t, png, chunk)

	// A bounded read from an offset reports eof=false until the end.
	env = envelopeOf(t, getSnapshotAsset(d, args(t, map[string]any{
		"snapshotId": string(snapID), "offset": 2, "length": 4,
	})))
	require.Equal(t, float64(4), env["length"])
	require.Equal(t, false, env["eof"])
	chunk, err = base64.StdEncoding.DecodeString(env["base64"].(string))
	require.NoError(t, err)
	require.Equal(t, png[2:6], chunk)
}

func TestGetSnapshotAssetByteEncoding(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)
	png := snapshotPNG("ab")
	snapID := seedSnapshot(t, d, sess, nil, 1100, png)

	env := envelopeOf(t, getSnapshotAsset(d, args(t, map[string]any{
		"snapshotId": string(snapID), "encoding": "bytes",
	})))
	raw := env["bytes"].([]any)
	require.Len(t, raw, len(png))
	for i, b := range png {
		require.Equal(t, float64(b), raw[i])
	}
	_, hasBase64 := env["base64"]
	require.False(t, hasBase64)
}

func TestGetSnapshotAssetValidation(t *testing.T) {
	d, _ := newDeps(t)
	sess := mustSession(t, d, store.SessionMeta{ID: "sess-a", URL: "https://app.example.com"}, 1000)

	msg := toolErrorOf(t, getSnapshotAsset(d, args(t, map[string]any{
		"snapshotId": "snap-x", "encoding": "hex",
	})))
	require.Equal(t, "INVALID_INPUT: encoding must be base64 or bytes", msg)

	msg = toolErrorOf(t, getSnapshotAsset(d, args(t, map[string]any{
		"snapshotId": "snap-x", "offset": -1,
	})))
	require.Equal(t, "INVALID_INPUT: offset must be non-negative", msg)

	// DOM-only snapshots carry no binary asset.
	domOnly := seedSnapshot(t, d, sess, nil, 1100, nil)
	msg = toolErrorOf(t, getSnapshotAsset(d, args(t, map[string]any{"snapshotId": string(domOnly)})))
	require.Contains(t, msg, "SNAPSHOT_ASSET_MISSING")

	msg = toolErrorOf(t, getSnapshotAsset(d, args(t, map[string]any{"snapshotId": "snap-missing"})))
	require.Contains(t, msg, "SESSION_NOT_FOUND")
}
