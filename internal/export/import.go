// import.go - Session import from JSON or base64-encoded ZIP archives.
// Imports are defensive: unknown event kinds coerce to "ui", unknown network
// initiator or error-class values become NULL, and a session-id collision
// remaps every id in the archive onto a fresh suffix.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/firelens/firelens/internal/store"
)

// maxImportAssetBytes bounds one PNG read out of an uploaded archive.
const maxImportAssetBytes = store.MaxSnapshotPNGBytes

// ImportResult reports what one import wrote.
type ImportResult struct {
	SessionID    store.SessionID `json:"sessionId"`
	Remapped     bool            `json:"remapped"`
	Events       int             `json:"events"`
	Network      int             `json:"network"`
	Fingerprints int             `json:"errorFingerprints"`
	Snapshots    int             `json:"snapshots"`
}

// ImportSession accepts either a JSON archive or a base64-encoded ZIP and
// persists it. Snapshot PNGs are re-written onto disk under the (possibly
// remapped) session id.
func ImportSession(st *store.Store, data []byte) (*ImportResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty import payload")
	}

	if trimmed[0] == '{' {
		var arch Archive
		if err := json.Unmarshal(trimmed, &arch); err != nil {
			return nil, fmt.Errorf("parse archive JSON: %w", err)
		}
		return importArchive(st, &arch, nil)
	}

	raw, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("import payload is neither JSON nor base64 ZIP: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open ZIP: %w", err)
	}

	assets := make(map[string][]byte)
	var arch *Archive
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxImportAssetBytes+1))
		rc.Close()
		if err != nil {
			return nil, err
		}
		if int64(len(content)) > maxImportAssetBytes {
			return nil, fmt.Errorf("archive entry %s exceeds %d bytes", f.Name, maxImportAssetBytes)
		}
		if f.Name == "manifest.json" {
			arch = &Archive{}
			if err := json.Unmarshal(content, arch); err != nil {
				return nil, fmt.Errorf("parse manifest.json: %w", err)
			}
			continue
		}
		assets[f.Name] = content
	}
	if arch == nil {
		return nil, fmt.Errorf("ZIP has no manifest.json")
	}
	return importArchive(st, arch, assets)
}

func importArchive(st *store.Store, arch *Archive, assets map[string][]byte) (*ImportResult, error) {
	if arch.Session.ID == "" {
		return nil, fmt.Errorf("archive has no session id")
	}
	if err := checkSectionCaps(arch); err != nil {
		return nil, err
	}

	sessionID := arch.Session.ID
	remapped := false
	suffix := ""
	exists, err := st.SessionExists(sessionID)
	if err != nil {
		return nil, err
	}
	if exists {
		remapped = true
		now := time.Now().UnixMilli()
		sessionID = store.SessionID(fmt.Sprintf("%s-import-%d",
			store.SanitizeID(string(arch.Session.ID)), now))
		suffix = fmt.Sprintf("-import-%d", now)
	}

	bundle := &store.SessionBundle{Session: arch.Session}
	bundle.Session.ID = sessionID

	eventIDs := make(map[store.EventID]store.EventID, len(arch.Events))
	for _, ev := range arch.Events {
		ev.SessionID = sessionID
		ev.Kind = coerceKind(ev.Kind)
		if remapped {
			mapped := store.EventID(string(ev.ID) + suffix)
			eventIDs[ev.ID] = mapped
			ev.ID = mapped
		}
		bundle.Events = append(bundle.Events, ev)
	}

	for _, n := range arch.Network {
		n.SessionID = sessionID
		if remapped {
			n.ID += suffix
		}
		if n.Initiator != nil && !store.ValidInitiators[*n.Initiator] {
			n.Initiator = nil
		}
		if n.ErrorClass != nil && !store.ValidErrorClasses[*n.ErrorClass] {
			n.ErrorClass = nil
		}
		bundle.Network = append(bundle.Network, n)
	}

	for _, fp := range arch.Fingerprints {
		fp.SessionID = sessionID
		bundle.Fingerprints = append(bundle.Fingerprints, fp)
	}

	for _, rec := range arch.Snapshots {
		snap := rec.Snapshot
		snap.SessionID = sessionID
		if remapped {
			snap.ID = store.SnapshotID(string(snap.ID) + suffix)
			if snap.TriggerEventID != nil {
				if mapped, ok := eventIDs[*snap.TriggerEventID]; ok {
					snap.TriggerEventID = &mapped
				} else {
					snap.TriggerEventID = nil
				}
			}
		}
		if len(rec.DOM) > 0 {
			snap.DOMJSON = string(rec.DOM)
		}
		if len(rec.Styles) > 0 {
			snap.StylesJSON = string(rec.Styles)
		}

		png, err := snapshotPixels(rec, assets)
		if err != nil {
			return nil, err
		}
		if png != nil {
			if !store.HasPNGMagic(png) {
				return nil, fmt.Errorf("snapshot %s: imported asset is not a PNG", snap.ID)
			}
			rel, err := st.WritePNGAssetRaw(sessionID, snap.ID, png)
			if err != nil {
				return nil, err
			}
			snap.PNGPath = rel
			snap.PNGBytes = int64(len(png))
			if snap.PNGMime == "" {
				snap.PNGMime = "image/png"
			}
		} else {
			snap.PNGPath = ""
			snap.PNGMime = ""
			snap.PNGBytes = 0
		}
		bundle.Snapshots = append(bundle.Snapshots, snap)
	}

	if err := st.ImportBundle(bundle); err != nil {
		return nil, err
	}

	return &ImportResult{
		SessionID:    sessionID,
		Remapped:     remapped,
		Events:       len(bundle.Events),
		Network:      len(bundle.Network),
		Fingerprints: len(bundle.Fingerprints),
		Snapshots:    len(bundle.Snapshots),
	}, nil
}

// snapshotPixels resolves the PNG bytes for one archived snapshot, from inline
// base64 or from the ZIP asset map. A manifest reference to a file missing
// from the ZIP is an error.
func snapshotPixels(rec SnapshotRecord, assets map[string][]byte) ([]byte, error) {
	if rec.PNGBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(rec.PNGBase64)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: decode inline PNG: %w", rec.ID, err)
		}
		return data, nil
	}
	if rec.PNGFile != "" {
		data, ok := assets[rec.PNGFile]
		if !ok {
			return nil, fmt.Errorf("snapshot %s: manifest references missing asset %s", rec.ID, rec.PNGFile)
		}
		return data, nil
	}
	return nil, nil
}

// checkSectionCaps rejects archives whose sections exceed the import budget.
func checkSectionCaps(arch *Archive) error {
	sections := []struct {
		name string
		n    int
	}{
		{"events", len(arch.Events)},
		{"network", len(arch.Network)},
		{"errorFingerprints", len(arch.Fingerprints)},
		{"snapshots", len(arch.Snapshots)},
	}
	var over []string
	for _, s := range sections {
		if s.n > MaxSectionRecords {
			over = append(over, fmt.Sprintf("%s (%d)", s.name, s.n))
		}
	}
	if len(over) > 0 {
		return fmt.Errorf("archive exceeds %d records per section: %s",
			MaxSectionRecords, strings.Join(over, ", "))
	}
	return nil
}

// coerceKind maps an archived event kind onto the closed kind set; anything
// unrecognized becomes "ui".
func coerceKind(kind string) string {
	switch kind {
	case store.KindConsole, store.KindError, store.KindNetwork,
		store.KindNav, store.KindUI, store.KindElementRef:
		return kind
	default:
		return store.KindUI
	}
}
