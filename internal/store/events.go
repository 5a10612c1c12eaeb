// events.go - Event batch ingest: kind projection, fingerprint upserts, network rows.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firelens/firelens/internal/util"
)

// kindMap projects wire eventType strings onto the closed stored type set.
// Any eventType not listed maps to "ui".
var kindMap = map[string]string{
	"navigation":  KindNav,
	"console":     KindConsole,
	"error":       KindError,
	"network":     KindNetwork,
	"element_ref": KindElementRef,
	"click":       KindUI,
	"scroll":      KindUI,
	"input":       KindUI,
	"change":      KindUI,
	"submit":      KindUI,
	"focus":       KindUI,
	"blur":        KindUI,
	"keydown":     KindUI,
	"custom":      KindUI,
	"ui_snapshot": KindUI,
}

// ProjectKind maps a wire eventType to a stored kind. Unknown types become "ui".
func ProjectKind(eventType string) string {
	if k, ok := kindMap[eventType]; ok {
		return k
	}
	return KindUI
}

// InsertEventBatch persists a batch of inbound events in one transaction.
// Error events additionally upsert a fingerprint row, network events insert a
// network row, and ui_snapshot events persist a snapshot (metadata row plus
// PNG asset on disk).
func (s *Store) InsertEventBatch(events []IngestEvent) ([]EventID, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin event batch: %w", err)
	}

	ids := make([]EventID, 0, len(events))
	for i := range events {
		id, err := s.insertEventTx(tx, &events[i])
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event batch: %w", err)
	}
	return ids, nil
}

func (s *Store) insertEventTx(tx *sql.Tx, ev *IngestEvent) (EventID, error) {
	ts := ev.Timestamp
	if ts == 0 {
		ts = util.NowMs()
	}
	kind := ProjectKind(ev.EventType)
	id := s.mintEventID(ts)

	origin := normalizeEventOrigin(ev)
	tabID := extractTabID(ev)

	payload := ev.Data
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}

	var originArg any
	if origin != "" {
		originArg = origin
	}
	_, err = tx.Exec(`
INSERT INTO events (event_id, session_id, ts, type, payload, tab_id, origin)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ev.SessionID, ts, kind, string(payloadJSON), tabID, originArg)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	switch kind {
	case KindError:
		if err := upsertFingerprintTx(tx, ev.SessionID, payload, ts); err != nil {
			return "", err
		}
	case KindNetwork:
		if err := insertNetworkTx(tx, ev.SessionID, payload, ts, origin); err != nil {
			return "", err
		}
	}
	if ev.EventType == "ui_snapshot" {
		if err := s.persistSnapshotTx(tx, ev.SessionID, id, payload, ts); err != nil {
			return "", err
		}
	}
	return id, nil
}

// normalizeEventOrigin prefers the envelope origin, then URL-shaped payload fields.
func normalizeEventOrigin(ev *IngestEvent) string {
	if o := util.NormalizeOrigin(ev.Origin); o != "" {
		return o
	}
	for _, key := range []string{"url", "to", "href", "location"} {
		if raw, ok := ev.Data[key].(string); ok {
			if o := util.NormalizeOrigin(raw); o != "" {
				return o
			}
		}
	}
	return ""
}

func extractTabID(ev *IngestEvent) any {
	if ev.TabID != nil {
		return *ev.TabID
	}
	if raw, ok := ev.Data["tabId"]; ok {
		if f, ok := raw.(float64); ok {
			return int(f)
		}
	}
	return nil
}

// upsertFingerprintTx aggregates an error event into error_fingerprints:
// insert on first sight, bump count and last_seen on collision.
func upsertFingerprintTx(tx *sql.Tx, sessionID SessionID, payload map[string]any, ts int64) error {
	message, _ := payload["message"].(string)
	stack, _ := payload["stack"].(string)
	fp := Fingerprint(message, stack)

	_, err := tx.Exec(`
INSERT INTO error_fingerprints (fingerprint_id, session_id, count, sample_message, sample_stack, first_seen, last_seen)
VALUES (?, ?, 1, ?, ?, ?, ?)
ON CONFLICT(fingerprint_id, session_id)
DO UPDATE SET count = count + 1, last_seen = MAX(last_seen, excluded.last_seen)`,
		fp, sessionID, message, stack, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}

// insertNetworkTx projects a network event payload into the network table.
// Unknown initiator and error class values are stored as NULL.
func insertNetworkTx(tx *sql.Tx, sessionID SessionID, payload map[string]any, ts int64, origin string) error {
	id := fmt.Sprintf("net-%d-%s", ts, SanitizeID(payloadStr(payload, "requestId")))
	if payloadStr(payload, "requestId") == "" {
		id = fmt.Sprintf("net-%d-%d", ts, time.Now().UnixNano()%1_000_000)
	}

	url := payloadStr(payload, "url")
	if origin == "" {
		origin = util.NormalizeOrigin(url)
	}

	var initiator, errorClass any
	if v := payloadStr(payload, "initiator"); ValidInitiators[v] {
		initiator = v
	}
	if v := payloadStr(payload, "errorType"); ValidErrorClasses[v] {
		errorClass = v
	} else if v := payloadStr(payload, "errorClass"); ValidErrorClasses[v] {
		errorClass = v
	}

	var originArg any
	if origin != "" {
		originArg = origin
	}
	_, err := tx.Exec(`
INSERT INTO network (id, session_id, start_ts, duration_ms, method, url, origin, status, initiator, error_class, body_size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, ts,
		payloadInt(payload, "duration"),
		payloadStr(payload, "method"),
		url, originArg,
		payloadInt(payload, "status"),
		initiator, errorClass,
		payloadInt(payload, "bodySize"))
	if err != nil {
		return fmt.Errorf("insert network row: %w", err)
	}
	return nil
}

func payloadStr(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func payloadInt(m map[string]any, key string) int64 {
	if f, ok := m[key].(float64); ok {
		return int64(f)
	}
	return 0
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
