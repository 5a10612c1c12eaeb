// porting.go - Whole-session row access backing export and import.
package store

import (
	"encoding/json"
	"fmt"
)

// SessionBundle is the complete persisted state of one session.
type SessionBundle struct {
	Session      Session
	Events       []Event
	Network      []NetworkRecord
	Fingerprints []ErrorFingerprint
	Snapshots    []Snapshot
}

// ExportBundle loads every row belonging to a session, oldest first.
func (s *Store) ExportBundle(id SessionID) (*SessionBundle, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	b := &SessionBundle{Session: *sess}

	rows, err := s.db.Query(`
SELECT event_id, session_id, ts, type, payload, tab_id, origin
FROM events WHERE session_id = ? ORDER BY ts ASC, event_id ASC`, id)
	if err != nil {
		return nil, err
	}
	b.Events, err = scanEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
SELECT id, session_id, start_ts, duration_ms, method, url, origin, status,
       initiator, error_class, body_size
FROM network WHERE session_id = ? ORDER BY start_ts ASC`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		rec, err := scanNetwork(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		b.Network = append(b.Network, *rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.Query(`
SELECT fingerprint_id, session_id, count, sample_message, sample_stack, first_seen, last_seen
FROM error_fingerprints WHERE session_id = ? ORDER BY first_seen ASC`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var fp ErrorFingerprint
		var stack *string
		if err := rows.Scan(&fp.ID, &fp.SessionID, &fp.Count, &fp.SampleMessage,
			&stack, &fp.FirstSeen, &fp.LastSeen); err != nil {
			rows.Close()
			return nil, err
		}
		if stack != nil {
			fp.SampleStack = *stack
		}
		b.Fingerprints = append(b.Fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.Query(snapshotSelect+`
WHERE session_id = ? ORDER BY ts ASC`, id)
	if err != nil {
		return nil, err
	}
	b.Snapshots, err = scanSnapshots(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ImportBundle inserts every row of a bundle in one transaction. Rows are
// inserted as given; the caller is responsible for id remapping and value
// coercion before calling.
func (s *Store) ImportBundle(b *SessionBundle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sess := b.Session
	var tabIDs any
	if len(sess.TabIDs) > 0 {
		raw, err := json.Marshal(sess.TabIDs)
		if err != nil {
			return err
		}
		tabIDs = string(raw)
	}
	_, err = tx.Exec(`
INSERT INTO sessions (session_id, created_at, ended_at, tab_ids, window_id,
    url_initial, url_last, user_agent, viewport_w, viewport_h, dpr, safe_mode, pinned)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt, sess.EndedAt, tabIDs, sess.WindowID,
		nullIfEmpty(sess.URLInitial), nullIfEmpty(sess.URLLast), nullIfEmpty(sess.UserAgent),
		sess.ViewportW, sess.ViewportH, sess.DPR, boolInt(sess.SafeMode), boolInt(sess.Pinned))
	if err != nil {
		return fmt.Errorf("import session row: %w", err)
	}

	for i := range b.Events {
		ev := &b.Events[i]
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
INSERT INTO events (event_id, session_id, ts, type, payload, tab_id, origin)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.SessionID, ev.Timestamp, ev.Kind, string(payload),
			ev.TabID, nullIfEmpty(ev.Origin))
		if err != nil {
			return fmt.Errorf("import event %s: %w", ev.ID, err)
		}
	}

	for i := range b.Network {
		n := &b.Network[i]
		_, err = tx.Exec(`
INSERT INTO network (id, session_id, start_ts, duration_ms, method, url, origin,
    status, initiator, error_class, body_size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.SessionID, n.StartTS, n.DurationMs, nullIfEmpty(n.Method),
			nullIfEmpty(n.URL), nullIfEmpty(n.Origin), n.Status, n.Initiator,
			n.ErrorClass, n.BodySize)
		if err != nil {
			return fmt.Errorf("import network %s: %w", n.ID, err)
		}
	}

	for i := range b.Fingerprints {
		fp := &b.Fingerprints[i]
		_, err = tx.Exec(`
INSERT INTO error_fingerprints (fingerprint_id, session_id, count, sample_message,
    sample_stack, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fp.ID, fp.SessionID, fp.Count, fp.SampleMessage,
			nullIfEmpty(fp.SampleStack), fp.FirstSeen, fp.LastSeen)
		if err != nil {
			return fmt.Errorf("import fingerprint %s: %w", fp.ID, err)
		}
	}

	for i := range b.Snapshots {
		sn := &b.Snapshots[i]
		var trigger any
		if sn.TriggerEventID != nil {
			trigger = string(*sn.TriggerEventID)
		}
		_, err = tx.Exec(`
INSERT INTO snapshots (snapshot_id, session_id, trigger_event_id, ts, "trigger",
    selector, url, mode, style_mode, dom_json, styles_json, png_path, png_mime,
    png_bytes, dom_truncated, styles_truncated, png_truncated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sn.ID, sn.SessionID, trigger, sn.Timestamp, sn.Trigger,
			nullIfEmpty(sn.Selector), nullIfEmpty(sn.URL), sn.Mode,
			nullIfEmpty(sn.StyleMode), nullIfEmpty(sn.DOMJSON), nullIfEmpty(sn.StylesJSON),
			nullIfEmpty(sn.PNGPath), nullIfEmpty(sn.PNGMime), sn.PNGBytes,
			boolInt(sn.DOMTruncated), boolInt(sn.StylesTrunc), boolInt(sn.PNGTruncated))
		if err != nil {
			return fmt.Errorf("import snapshot %s: %w", sn.ID, err)
		}
	}

	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
