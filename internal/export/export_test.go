// export_test.go - Archive round trips, id remapping, and import coercion.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/firelens/firelens/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testPNG(filler string) []byte {
	return append(append([]byte{}, store.PNGMagic...), []byte(filler)...)
}

// seedSession populates a session with events, a network failure, a
// fingerprint, and a snapshot with pixels, and returns its id.
func seedSession(t *testing.T, st *store.Store, id store.SessionID) store.SessionID {
	t.Helper()
	sess, err := st.CreateSession(store.SessionMeta{ID: id, URL: "https://app.example.com"}, 1000)
	require.NoError(t, err)

	ids, err := st.InsertEventBatch([]store.IngestEvent{
		{SessionID: sess, EventType: "click", Timestamp: 1100, Data: map[string]any{"selector": "#go"}},
		{SessionID: sess, EventType: "error", Timestamp: 1200,
			Data: map[string]any{"message": "TypeError: bad", "stack": "at a.js:1"}},
		{SessionID: sess, EventType: "network", Timestamp: 1300,
			Data: map[string]any{"url": "https://api.example.com/v1", "status": float64(500), "method": "GET"}},
	})
	require.NoError(t, err)

	_, err = st.InsertSnapshot(store.SnapshotInput{
		SessionID:      sess,
		TriggerEventID: &ids[0],
		Timestamp:      1400,
		Trigger:        "click",
		Mode:           "both",
		DOM:            map[string]any{"tag": "main"},
		PNGDataURL:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG("pixels")),
	})
	require.NoError(t, err)
	return sess
}

func TestJSONExportInlinePNGDecodes(t *testing.T) {
	st := newTestStore(t)
	sess := seedSession(t, st, "sess-a")

	data, err := SessionJSON(st, sess, true)
	require.NoError(t, err)

	var arch Archive
	require.NoError(t, json.Unmarshal(data, &arch))
	require.Equal(t, FormatVersion, arch.FormatVersion)
	require.Equal(t, sess, arch.Session.ID)
	require.Len(t, arch.Events, 3)
	require.Len(t, arch.Network, 1)
	require.Len(t, arch.Fingerprints, 1)
	require.Len(t, arch.Snapshots, 1)

	png, err := base64.StdEncoding.DecodeString(arch.Snapshots[0].PNGBase64)
	require.NoError(t, err)
	require.Equal(t, testPNG("pixels"), png)
}

func TestJSONExportWithoutInlinePNG(t *testing.T) {
	st := newTestStore(t)
	sess := seedSession(t, st, "sess-a")

	data, err := SessionJSON(st, sess, false)
	require.NoError(t, err)

	var arch Archive
	require.NoError(t, json.Unmarshal(data, &arch))
	require.Empty(t, arch.Snapshots[0].PNGBase64)
	require.NotEmpty(t, arch.Snapshots[0].PNGPath)
}

func TestJSONRoundTrip(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)
	sess := seedSession(t, src, "sess-a")

	data, err := SessionJSON(src, sess, true)
	require.NoError(t, err)

	res, err := ImportSession(dst, data)
	require.NoError(t, err)
	require.False(t, res.Remapped)
	require.Equal(t, sess, res.SessionID)
	require.Equal(t, 3, res.Events)
	require.Equal(t, 1, res.Network)
	require.Equal(t, 1, res.Fingerprints)
	require.Equal(t, 1, res.Snapshots)

	snaps, err := dst.ListSnapshots(sess, 10, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	png, err := dst.ReadSnapshotPNG(&snaps[0])
	require.NoError(t, err)
	require.Equal(t, testPNG("pixels"), png)

	fps, err := dst.QueryErrorFingerprints(sess, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, fps, 1)
	require.Equal(t, "TypeError: bad", fps[0].SampleMessage)
}

func TestZIPRoundTrip(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)
	sess := seedSession(t, src, "sess-a")

	blob, err := SessionZIP(src, sess)
	require.NoError(t, err)

	// The archive itself has manifest.json plus one asset.
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["manifest.json"])
	require.Len(t, zr.File, 2)

	res, err := ImportSession(dst, []byte(base64.StdEncoding.EncodeToString(blob)))
	require.NoError(t, err)
	require.Equal(t, 1, res.Snapshots)

	snaps, err := dst.ListSnapshots(sess, 10, 0)
	require.NoError(t, err)
	png, err := dst.ReadSnapshotPNG(&snaps[0])
	require.NoError(t, err)
	require.Equal(t, testPNG("pixels"), png)
}

func TestImportCollisionRemapsEveryID(t *testing.T) {
	st := newTestStore(t)
	sess := seedSession(t, st, "sess-a")

	data, err := SessionJSON(st, sess, true)
	require.NoError(t, err)

	res, err := ImportSession(st, data)
	require.NoError(t, err)
	require.True(t, res.Remapped)
	require.NotEqual(t, sess, res.SessionID)
	require.True(t, strings.HasPrefix(string(res.SessionID), "sess-a-import-"))

	// Both the original and the import coexist with full row sets.
	events, err := st.QueryEvents(store.EventFilter{SessionID: res.SessionID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, ev := range events {
		require.Contains(t, string(ev.ID), "-import-")
	}

	snaps, err := st.ListSnapshots(res.SessionID, 10, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Contains(t, string(snaps[0].ID), "-import-")
	// The trigger event reference follows the remap.
	require.NotNil(t, snaps[0].TriggerEventID)
	require.Contains(t, string(*snaps[0].TriggerEventID), "-import-")

	originalEvents, err := st.QueryEvents(store.EventFilter{SessionID: sess, Limit: 10})
	require.NoError(t, err)
	require.Len(t, originalEvents, 3)
}

func TestImportCoercesUnknownValues(t *testing.T) {
	st := newTestStore(t)

	martian := "martian"
	arch := Archive{
		FormatVersion: FormatVersion,
		Session:       store.Session{ID: "sess-x", CreatedAt: 1000},
		Events: []store.Event{
			{ID: "evt-1", SessionID: "sess-x", Timestamp: 1100, Kind: "hologram",
				Payload: map[string]any{"x": float64(1)}},
		},
		Network: []store.NetworkRecord{
			{ID: "net-1", SessionID: "sess-x", StartTS: 1200, URL: "https://a.example.com",
				Status: 500, Initiator: &martian, ErrorClass: &martian},
		},
	}
	data, err := json.Marshal(arch)
	require.NoError(t, err)

	res, err := ImportSession(st, data)
	require.NoError(t, err)
	require.Equal(t, 1, res.Events)

	events, err := st.QueryEvents(store.EventFilter{SessionID: "sess-x", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, store.KindUI, events[0].Kind)

	recs, err := st.QueryNetwork(store.NetworkFilter{SessionID: "sess-x", Limit: 10})
	require.NoError(t, err)
	require.Nil(t, recs[0].Initiator)
	require.Nil(t, recs[0].ErrorClass)
}

func TestImportRejectsOversizedSection(t *testing.T) {
	st := newTestStore(t)

	arch := Archive{
		FormatVersion: FormatVersion,
		Session:       store.Session{ID: "sess-big", CreatedAt: 1000},
		// The cap check runs before any row is touched, so zero values suffice.
		Events: make([]store.Event, MaxSectionRecords+1),
	}
	data, err := json.Marshal(arch)
	require.NoError(t, err)

	_, err = ImportSession(st, data)
	require.ErrorContains(t, err, "exceeds 100000 records")
	require.ErrorContains(t, err, "events")
}

func TestImportMissingManifestAsset(t *testing.T) {
	st := newTestStore(t)

	arch := Archive{
		FormatVersion: FormatVersion,
		Session:       store.Session{ID: "sess-x", CreatedAt: 1000},
		Snapshots: []SnapshotRecord{{
			Snapshot: store.Snapshot{ID: "snap-1", SessionID: "sess-x",
				Timestamp: 1100, Trigger: "manual", Mode: "png"},
			PNGFile: "assets/snap-1.png",
		}},
	}
	manifest, err := json.Marshal(arch)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write(manifest)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ImportSession(st, []byte(base64.StdEncoding.EncodeToString(buf.Bytes())))
	require.ErrorContains(t, err, "missing asset")
}

func TestImportZIPWithoutManifest(t *testing.T) {
	st := newTestStore(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("assets/loose.png")
	require.NoError(t, err)
	_, err = w.Write(testPNG("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ImportSession(st, []byte(base64.StdEncoding.EncodeToString(buf.Bytes())))
	require.ErrorContains(t, err, "no manifest.json")
}

func TestImportGarbagePayload(t *testing.T) {
	st := newTestStore(t)

	_, err := ImportSession(st, []byte("   "))
	require.ErrorContains(t, err, "empty import payload")

	_, err = ImportSession(st, []byte("not json and not base64!!!"))
	require.ErrorContains(t, err, "neither JSON nor base64")
}
