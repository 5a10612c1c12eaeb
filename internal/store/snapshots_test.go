// snapshots_test.go - Snapshot persistence, asset reads, and the orphan sweep.
package store

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPNG(filler string) []byte {
	return append(append([]byte{}, PNGMagic...), []byte(filler)...)
}

func pngDataURL(filler string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(filler))
}

func TestInsertSnapshotWithPNG(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	id, err := st.InsertSnapshot(SnapshotInput{
		SessionID:  sess,
		Timestamp:  1500,
		Trigger:    "manual",
		Mode:       "both",
		StyleMode:  "computed-lite",
		DOM:        map[string]any{"tag": "div"},
		PNGDataURL: pngDataURL("pixels"),
	})
	require.NoError(t, err)

	snap, err := st.GetSnapshot(id)
	require.NoError(t, err)
	require.Equal(t, sess, snap.SessionID)
	require.Equal(t, "both", snap.Mode)
	require.Equal(t, "computed-lite", snap.StyleMode)
	require.NotEmpty(t, snap.PNGPath)
	require.Equal(t, "image/png", snap.PNGMime)
	require.Equal(t, int64(len(testPNG("pixels"))), snap.PNGBytes)
	require.Contains(t, snap.DOMJSON, `"tag":"div"`)

	data, err := st.ReadSnapshotPNG(snap)
	require.NoError(t, err)
	require.Equal(t, testPNG("pixels"), data)
}

func TestInsertSnapshotCoercesInvalidEnums(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	id, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess,
		Timestamp: 1500,
		Trigger:   "teleport",
		Mode:      "hologram",
		StyleMode: "psychic",
	})
	require.NoError(t, err)

	snap, err := st.GetSnapshot(id)
	require.NoError(t, err)
	require.Equal(t, "manual", snap.Trigger)
	require.Equal(t, "dom", snap.Mode)
	require.Empty(t, snap.StyleMode)
}

func TestInsertSnapshotRejectsOversizedJSON(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	_, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess,
		Timestamp: 1500,
		Trigger:   "manual",
		Mode:      "dom",
		DOM:       map[string]any{"blob": strings.Repeat("x", MaxSnapshotJSONBytes)},
	})
	require.ErrorContains(t, err, "exceeds")
}

func TestDecodePNGDataURL(t *testing.T) {
	tests := []struct {
		name    string
		dataURL string
		wantErr string
	}{
		{"valid", pngDataURL("ok"), ""},
		{"wrong prefix", "data:image/jpeg;base64,AAAA", "not a data:image/png"},
		{"bad base64", "data:image/png;base64,!!!", "decode png base64"},
		{"missing magic", "data:image/png;base64," +
			base64.StdEncoding.EncodeToString([]byte("notapng")), "missing PNG signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := DecodePNGDataURL(tt.dataURL)
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.True(t, HasPNGMagic(data))
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReadSnapshotAssetChunks(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	png := testPNG("0123456789")
	id, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess, Timestamp: 1500, Trigger: "manual", Mode: "png",
		PNGDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	require.NoError(t, err)

	chunk, total, err := st.ReadSnapshotAsset(id, 0, 8)
	require.NoError(t, err)
	require.Equal(t, int64(len(png)), total)
	require.Equal(t, png[:8], chunk)

	chunk, _, err = st.ReadSnapshotAsset(id, 8, 1000)
	require.NoError(t, err)
	require.Equal(t, png[8:], chunk)

	// Offset past EOF: empty chunk, total still reported.
	chunk, total, err = st.ReadSnapshotAsset(id, total+10, 8)
	require.NoError(t, err)
	require.Empty(t, chunk)
	require.Equal(t, int64(len(png)), total)
}

func TestSnapshotForEvent(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	ids, err := st.InsertEventBatch([]IngestEvent{
		{SessionID: sess, EventType: "click", Timestamp: 1000, Data: map[string]any{}},
		{SessionID: sess, EventType: "click", Timestamp: 5000, Data: map[string]any{}},
	})
	require.NoError(t, err)

	linked, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess, TriggerEventID: &ids[0], Timestamp: 1100,
		Trigger: "click", Mode: "dom",
	})
	require.NoError(t, err)
	nearby, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess, Timestamp: 5200, Trigger: "manual", Mode: "dom",
	})
	require.NoError(t, err)

	// Direct trigger link wins.
	snap, err := st.SnapshotForEvent(ids[0], 10_000)
	require.NoError(t, err)
	require.Equal(t, linked, snap.ID)

	// No link: nearest by timestamp within the window.
	snap, err = st.SnapshotForEvent(ids[1], 1000)
	require.NoError(t, err)
	require.Equal(t, nearby, snap.ID)

	// Window too tight.
	_, err = st.SnapshotForEvent(ids[1], 100)
	require.ErrorContains(t, err, "no snapshot within")
}

func TestSweepOrphanAssets(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	id, err := st.InsertSnapshot(SnapshotInput{
		SessionID: sess, Timestamp: 1500, Trigger: "manual", Mode: "png",
		PNGDataURL: pngDataURL("keep"),
	})
	require.NoError(t, err)
	snap, err := st.GetSnapshot(id)
	require.NoError(t, err)

	// Plant an orphan next to the real asset.
	orphan := filepath.Join(filepath.Dir(filepath.Join(st.DataDir(), snap.PNGPath)), "stray.png")
	require.NoError(t, os.WriteFile(orphan, testPNG("stray"), 0o644))

	removed, err := st.SweepOrphanAssets()
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(orphan)
	require.True(t, os.IsNotExist(err))
	_, err = st.ReadSnapshotPNG(snap)
	require.NoError(t, err)
}

func TestUISnapshotEventPersistsSnapshot(t *testing.T) {
	st := newTestStore(t)
	sess := mustCreateSession(t, st, "sess-a", 1000)

	ids, err := st.InsertEventBatch([]IngestEvent{
		{SessionID: sess, EventType: "ui_snapshot", Timestamp: 2000, Data: map[string]any{
			"trigger": "click",
			"mode":    "both",
			"dom":     map[string]any{"tag": "main"},
			"png":     pngDataURL("auto"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	snaps, err := st.ListSnapshots(sess, 10, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].TriggerEventID)
	require.Equal(t, ids[0], *snaps[0].TriggerEventID)
	require.Equal(t, "click", snaps[0].Trigger)
}
