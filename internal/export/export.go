// export.go - Session export to portable JSON and ZIP archives.
// JSON carries every row inline, with snapshot PNGs optionally base64-encoded.
// ZIP holds manifest.json plus the referenced PNG files under assets/.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firelens/firelens/internal/store"
)

// FormatVersion tags archives so future readers can branch on layout.
const FormatVersion = 1

// MaxSectionRecords caps each archive section on import.
const MaxSectionRecords = 100000

// SnapshotRecord is a snapshot row with DOM and style payloads inline.
// Exactly one of PNGBase64 (JSON export) or PNGFile (ZIP export) is set for
// snapshots that captured pixels.
type SnapshotRecord struct {
	store.Snapshot
	DOM       json.RawMessage `json:"dom,omitempty"`
	Styles    json.RawMessage `json:"styles,omitempty"`
	PNGBase64 string          `json:"pngBase64,omitempty"`
	PNGFile   string          `json:"pngFile,omitempty"`
}

// Archive is the portable form of one session.
type Archive struct {
	FormatVersion int                      `json:"formatVersion"`
	ExportedAt    int64                    `json:"exportedAt"`
	Session       store.Session            `json:"session"`
	Events        []store.Event            `json:"events"`
	Network       []store.NetworkRecord    `json:"network"`
	Fingerprints  []store.ErrorFingerprint `json:"errorFingerprints"`
	Snapshots     []SnapshotRecord         `json:"snapshots"`
}

// BuildArchive assembles the archive for one session. When inlinePNG is set,
// snapshot pixels are embedded as base64; otherwise snapshots carry only
// metadata (the ZIP path fills in PNGFile separately).
func BuildArchive(st *store.Store, id store.SessionID, inlinePNG bool) (*Archive, error) {
	bundle, err := st.ExportBundle(id)
	if err != nil {
		return nil, err
	}

	arch := &Archive{
		FormatVersion: FormatVersion,
		ExportedAt:    time.Now().UnixMilli(),
		Session:       bundle.Session,
		Events:        bundle.Events,
		Network:       bundle.Network,
		Fingerprints:  bundle.Fingerprints,
	}

	for i := range bundle.Snapshots {
		snap := bundle.Snapshots[i]
		rec := SnapshotRecord{Snapshot: snap}
		if snap.DOMJSON != "" {
			rec.DOM = json.RawMessage(snap.DOMJSON)
		}
		if snap.StylesJSON != "" {
			rec.Styles = json.RawMessage(snap.StylesJSON)
		}
		if inlinePNG && snap.PNGPath != "" {
			data, err := st.ReadSnapshotPNG(&snap)
			if err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
			}
			if !store.HasPNGMagic(data) {
				return nil, fmt.Errorf("snapshot %s: asset is not a PNG", snap.ID)
			}
			rec.PNGBase64 = base64.StdEncoding.EncodeToString(data)
		}
		arch.Snapshots = append(arch.Snapshots, rec)
	}
	return arch, nil
}

// SessionJSON renders a session as a standalone JSON document.
func SessionJSON(st *store.Store, id store.SessionID, inlinePNG bool) ([]byte, error) {
	arch, err := BuildArchive(st, id, inlinePNG)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(arch, "", "  ")
}

// SessionZIP renders a session as a ZIP: manifest.json plus one PNG per
// snapshot that captured pixels, stored under assets/. Every PNG is verified
// against the PNG magic before packing.
func SessionZIP(st *store.Store, id store.SessionID) ([]byte, error) {
	arch, err := BuildArchive(st, id, false)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i := range arch.Snapshots {
		rec := &arch.Snapshots[i]
		if rec.PNGPath == "" {
			continue
		}
		data, err := st.ReadSnapshotPNG(&rec.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", rec.ID, err)
		}
		if !store.HasPNGMagic(data) {
			return nil, fmt.Errorf("snapshot %s: asset is not a PNG", rec.ID)
		}
		name := fmt.Sprintf("assets/%s.png", store.SanitizeID(string(rec.ID)))
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		rec.PNGFile = name
	}

	manifest, err := json.MarshalIndent(arch, "", "  ")
	if err != nil {
		return nil, err
	}
	w, err := zw.Create("manifest.json")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(manifest); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
