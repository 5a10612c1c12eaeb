// snapshots.go - Snapshot persistence: bounded DOM/style JSON, PNG assets on disk.
// PNG binaries are stored under <data-dir>/snapshot-assets/<session>/<id>.png
// and referenced by relative path; reads re-resolve against the data dir and
// reject paths escaping the asset root.
package store

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxSnapshotJSONBytes bounds the serialized DOM and styles JSON (each).
	MaxSnapshotJSONBytes = 512 * 1024
	// MaxSnapshotPNGBytes bounds a decoded PNG payload.
	MaxSnapshotPNGBytes = 5 * 1024 * 1024

	pngDataURLPrefix = "data:image/png;base64,"
)

// PNGMagic is the 8-byte PNG file signature.
var PNGMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// SnapshotInput carries one snapshot to persist. PNGDataURL, DOM, and Styles
// are optional depending on Mode.
type SnapshotInput struct {
	SessionID      SessionID
	TriggerEventID *EventID
	Timestamp      int64
	Trigger        string
	Selector       string
	URL            string
	Mode           string
	StyleMode      string
	DOM            any
	Styles         any
	PNGDataURL     string
	DOMTruncated   bool
	StylesTrunc    bool
	PNGTruncated   bool
}

// validSnapshotTriggers mirrors the snapshots.trigger CHECK constraint.
var validSnapshotTriggers = map[string]bool{
	"click": true, "manual": true, "navigation": true, "error": true,
}

// InsertSnapshot persists one snapshot in its own transaction.
func (s *Store) InsertSnapshot(in SnapshotInput) (SnapshotID, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin snapshot insert: %w", err)
	}
	id, err := s.insertSnapshotTx(tx, in)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit snapshot insert: %w", err)
	}
	return id, nil
}

// persistSnapshotTx handles ui_snapshot events inside an event batch transaction.
func (s *Store) persistSnapshotTx(tx *sql.Tx, sessionID SessionID, eventID EventID, payload map[string]any, ts int64) error {
	in := SnapshotInput{
		SessionID:      sessionID,
		TriggerEventID: &eventID,
		Timestamp:      ts,
		Trigger:        payloadStr(payload, "trigger"),
		Selector:       payloadStr(payload, "selector"),
		URL:            payloadStr(payload, "url"),
		Mode:           payloadStr(payload, "mode"),
		StyleMode:      payloadStr(payload, "styleMode"),
		DOM:            payload["dom"],
		Styles:         payload["styles"],
		PNGDataURL:     payloadStr(payload, "png"),
	}
	if t, ok := payload["domTruncated"].(bool); ok {
		in.DOMTruncated = t
	}
	if t, ok := payload["stylesTruncated"].(bool); ok {
		in.StylesTrunc = t
	}
	if t, ok := payload["pngTruncated"].(bool); ok {
		in.PNGTruncated = t
	}
	_, err := s.insertSnapshotTx(tx, in)
	return err
}

func (s *Store) insertSnapshotTx(tx *sql.Tx, in SnapshotInput) (SnapshotID, error) {
	if !validSnapshotTriggers[in.Trigger] {
		in.Trigger = "manual"
	}
	switch in.Mode {
	case "dom", "png", "both":
	default:
		in.Mode = "dom"
	}
	if in.StyleMode != "computed-lite" && in.StyleMode != "computed-full" {
		in.StyleMode = ""
	}

	id := SnapshotID("snap-" + uuid.NewString())

	var domJSON, stylesJSON string
	if in.DOM != nil {
		b, err := json.Marshal(in.DOM)
		if err != nil {
			return "", fmt.Errorf("marshal snapshot DOM: %w", err)
		}
		if len(b) > MaxSnapshotJSONBytes {
			return "", fmt.Errorf("snapshot DOM JSON exceeds %d bytes", MaxSnapshotJSONBytes)
		}
		domJSON = string(b)
	}
	if in.Styles != nil {
		b, err := json.Marshal(in.Styles)
		if err != nil {
			return "", fmt.Errorf("marshal snapshot styles: %w", err)
		}
		if len(b) > MaxSnapshotJSONBytes {
			return "", fmt.Errorf("snapshot styles JSON exceeds %d bytes", MaxSnapshotJSONBytes)
		}
		stylesJSON = string(b)
	}

	var pngPath string
	var pngBytes int64
	if in.PNGDataURL != "" {
		data, err := DecodePNGDataURL(in.PNGDataURL)
		if err != nil {
			return "", err
		}
		rel, err := s.writePNGAsset(in.SessionID, id, data)
		if err != nil {
			return "", err
		}
		pngPath = rel
		pngBytes = int64(len(data))
	}

	var styleModeArg, domArg, stylesArg, pngPathArg, pngMimeArg any
	if in.StyleMode != "" {
		styleModeArg = in.StyleMode
	}
	if domJSON != "" {
		domArg = domJSON
	}
	if stylesJSON != "" {
		stylesArg = stylesJSON
	}
	if pngPath != "" {
		pngPathArg = pngPath
		pngMimeArg = "image/png"
	}

	var triggerEventArg any
	if in.TriggerEventID != nil {
		triggerEventArg = *in.TriggerEventID
	}

	_, err := tx.Exec(`
INSERT INTO snapshots (snapshot_id, session_id, trigger_event_id, ts, "trigger", selector, url,
                       mode, style_mode, dom_json, styles_json, png_path, png_mime, png_bytes,
                       dom_truncated, styles_truncated, png_truncated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.SessionID, triggerEventArg, in.Timestamp, in.Trigger, in.Selector, in.URL,
		in.Mode, styleModeArg, domArg, stylesArg, pngPathArg, pngMimeArg, pngBytes,
		boolInt(in.DOMTruncated), boolInt(in.StylesTrunc), boolInt(in.PNGTruncated))
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// DecodePNGDataURL decodes a data:image/png;base64 payload, enforcing the size
// budget and the PNG magic bytes.
func DecodePNGDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, fmt.Errorf("png payload is not a data:image/png;base64 URL")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode png base64: %w", err)
	}
	if len(data) > MaxSnapshotPNGBytes {
		return nil, fmt.Errorf("png payload exceeds %d bytes", MaxSnapshotPNGBytes)
	}
	if !HasPNGMagic(data) {
		return nil, fmt.Errorf("png payload missing PNG signature")
	}
	return data, nil
}

// HasPNGMagic reports whether data starts with the PNG file signature.
func HasPNGMagic(data []byte) bool {
	if len(data) < len(PNGMagic) {
		return false
	}
	for i, b := range PNGMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}

// writePNGAsset writes PNG bytes to the asset tree and returns the path
// relative to the data directory.
func (s *Store) writePNGAsset(sessionID SessionID, id SnapshotID, data []byte) (string, error) {
	dir := filepath.Join(s.assetsRoot(), SanitizeID(string(sessionID)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	name := SanitizeID(string(id)) + ".png"
	abs := filepath.Join(dir, name)
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write png asset: %w", err)
	}
	rel, err := filepath.Rel(s.dataDir, abs)
	if err != nil {
		return "", err
	}
	return rel, nil
}

// WritePNGAssetRaw persists raw PNG bytes for import paths (bytes already verified).
func (s *Store) WritePNGAssetRaw(sessionID SessionID, id SnapshotID, data []byte) (string, error) {
	if !HasPNGMagic(data) {
		return "", fmt.Errorf("png payload missing PNG signature")
	}
	return s.writePNGAsset(sessionID, id, data)
}

// ListSnapshots returns snapshot metadata for a session, newest first.
func (s *Store) ListSnapshots(sessionID SessionID, limit, offset int) ([]Snapshot, error) {
	rows, err := s.db.Query(snapshotSelect+`
WHERE session_id = ?
ORDER BY ts DESC
LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// GetSnapshot loads one snapshot row including its bounded JSON columns.
func (s *Store) GetSnapshot(id SnapshotID) (*Snapshot, error) {
	row := s.db.QueryRow(snapshotSelect+" WHERE snapshot_id = ?", id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	return snap, err
}

// SnapshotForEvent prefers the snapshot whose trigger_event_id matches the
// event; otherwise falls back to the nearest snapshot by timestamp within
// maxDeltaMs of the event's timestamp.
func (s *Store) SnapshotForEvent(eventID EventID, maxDeltaMs int64) (*Snapshot, error) {
	row := s.db.QueryRow(snapshotSelect+" WHERE trigger_event_id = ? ORDER BY ts DESC LIMIT 1", eventID)
	snap, err := scanSnapshot(row)
	if err == nil {
		return snap, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	var sessionID SessionID
	var ts int64
	err = s.db.QueryRow(
		"SELECT session_id, ts FROM events WHERE event_id = ?", eventID).Scan(&sessionID, &ts)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	if err != nil {
		return nil, err
	}

	row = s.db.QueryRow(snapshotSelect+`
WHERE session_id = ? AND ABS(ts - ?) <= ?
ORDER BY ABS(ts - ?) ASC LIMIT 1`, sessionID, ts, maxDeltaMs, ts)
	snap, err = scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshot within %dms of event %s", maxDeltaMs, eventID)
	}
	return snap, err
}

// ReadSnapshotAsset reads up to length bytes of a snapshot's PNG at offset.
// Returns the chunk and the total asset size.
func (s *Store) ReadSnapshotAsset(id SnapshotID, offset, length int64) ([]byte, int64, error) {
	snap, err := s.GetSnapshot(id)
	if err != nil {
		return nil, 0, err
	}
	if snap.PNGPath == "" {
		return nil, 0, fmt.Errorf("snapshot %s has no PNG asset", id)
	}
	abs, err := s.resolveAssetPath(snap.PNGPath)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("snapshot asset missing: %s", snap.PNGPath)
		}
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	total := info.Size()
	if offset >= total {
		return nil, total, nil
	}
	if offset+length > total {
		length = total - offset
	}
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, 0, err
	}
	return buf, total, nil
}

// ReadSnapshotPNG reads the full PNG asset for export.
func (s *Store) ReadSnapshotPNG(snap *Snapshot) ([]byte, error) {
	if snap.PNGPath == "" {
		return nil, fmt.Errorf("snapshot %s has no PNG asset", snap.ID)
	}
	abs, err := s.resolveAssetPath(snap.PNGPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot asset missing: %s", snap.PNGPath)
		}
		return nil, err
	}
	return data, nil
}

// SweepOrphanAssets deletes asset files whose relative path is not referenced
// by any snapshot row. Returns the number of files removed.
func (s *Store) SweepOrphanAssets() (int, error) {
	referenced := make(map[string]bool)
	rows, err := s.db.Query("SELECT png_path FROM snapshots WHERE png_path IS NOT NULL")
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		referenced[filepath.Clean(p)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	root := s.assetsRoot()
	removed := 0
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return err
		}
		if !referenced[filepath.Clean(rel)] {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, err
	}

	// Drop now-empty per-session directories.
	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = os.Remove(filepath.Join(root, e.Name()))
			}
		}
	}
	return removed, nil
}

const snapshotSelect = `
SELECT snapshot_id, session_id, trigger_event_id, ts, "trigger", selector, url,
       mode, style_mode, dom_json, styles_json, png_path, png_mime, png_bytes,
       dom_truncated, styles_truncated, png_truncated
FROM snapshots`

func scanSnapshot(r rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var triggerEvent, selector, url, styleMode, domJSON, stylesJSON, pngPath, pngMime sql.NullString
	var pngBytes sql.NullInt64
	var domTrunc, stylesTrunc, pngTrunc int

	err := r.Scan(&snap.ID, &snap.SessionID, &triggerEvent, &snap.Timestamp,
		&snap.Trigger, &selector, &url, &snap.Mode, &styleMode, &domJSON,
		&stylesJSON, &pngPath, &pngMime, &pngBytes, &domTrunc, &stylesTrunc, &pngTrunc)
	if err != nil {
		return nil, err
	}

	if triggerEvent.Valid {
		id := EventID(triggerEvent.String)
		snap.TriggerEventID = &id
	}
	snap.Selector = selector.String
	snap.URL = url.String
	snap.StyleMode = styleMode.String
	snap.DOMJSON = domJSON.String
	snap.StylesJSON = stylesJSON.String
	snap.PNGPath = pngPath.String
	snap.PNGMime = pngMime.String
	snap.PNGBytes = pngBytes.Int64
	snap.DOMTruncated = domTrunc != 0
	snap.StylesTrunc = stylesTrunc != 0
	snap.PNGTruncated = pngTrunc != 0
	return &snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}
