// queries.go - Read primitives backing the V1 query tools.
// Origin-filtered queries match the stored origin column, or fall back to
// URL-shaped payload fields (url/to/href/location) when origin is NULL:
// exact match or prefix "<origin>/".
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// EventFilter selects events for the read tools. Exactly one of SessionID or
// Origin is expected to be set (tool validation enforces this).
type EventFilter struct {
	SessionID SessionID
	Origin    string
	Kinds     []string
	SinceMs   int64
	Limit     int
	Offset    int
}

// originClause builds the origin-match SQL fragment over the events table.
func originClause(origin string, args *[]any) string {
	exact := origin
	prefix := origin + "/%"
	*args = append(*args, exact,
		exact, prefix, exact, prefix, exact, prefix, exact, prefix)
	return `(origin = ? OR (origin IS NULL AND (
        json_extract(payload, '$.url') = ? OR json_extract(payload, '$.url') LIKE ? OR
        json_extract(payload, '$.to') = ? OR json_extract(payload, '$.to') LIKE ? OR
        json_extract(payload, '$.href') = ? OR json_extract(payload, '$.href') LIKE ? OR
        json_extract(payload, '$.location') = ? OR json_extract(payload, '$.location') LIKE ?)))`
}

// QueryEvents returns events matching the filter, newest first.
func (s *Store) QueryEvents(f EventFilter) ([]Event, error) {
	var where []string
	var args []any

	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	} else if f.Origin != "" {
		where = append(where, originClause(f.Origin, &args))
	}
	if len(f.Kinds) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",")
		where = append(where, fmt.Sprintf("type IN (%s)", ph))
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.SinceMs > 0 {
		where = append(where, "ts >= ?")
		args = append(args, f.SinceMs)
	}

	q := "SELECT event_id, session_id, ts, type, payload, tab_id, origin FROM events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC, event_id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEvent loads one event by id.
func (s *Store) GetEvent(id EventID) (*Event, error) {
	row := s.db.QueryRow(
		"SELECT event_id, session_id, ts, type, payload, tab_id, origin FROM events WHERE event_id = ?", id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s not found", id)
	}
	return ev, err
}

// EventsInWindow returns all events of a session within [centerTs-windowMs,
// centerTs+windowMs], excluding excludeID, ordered by ts asc.
func (s *Store) EventsInWindow(sessionID SessionID, centerTs, windowMs int64, excludeID EventID) ([]Event, error) {
	rows, err := s.db.Query(`
SELECT event_id, session_id, ts, type, payload, tab_id, origin FROM events
WHERE session_id = ? AND ts BETWEEN ? AND ? AND event_id != ?
ORDER BY ts ASC`, sessionID, centerTs-windowMs, centerTs+windowMs, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestEventOfKind returns the most recent event of the given stored kind, or nil.
func (s *Store) LatestEventOfKind(sessionID SessionID, kind string) (*Event, error) {
	row := s.db.QueryRow(`
SELECT event_id, session_id, ts, type, payload, tab_id, origin FROM events
WHERE session_id = ? AND type = ?
ORDER BY ts DESC LIMIT 1`, sessionID, kind)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

// NetworkFilter selects network rows.
type NetworkFilter struct {
	SessionID    SessionID
	Origin       string
	ErrorClass   string
	FailuresOnly bool
	Limit        int
	Offset       int
}

// failureClause defines a network failure: non-null error class or status >= 400.
const failureClause = "(error_class IS NOT NULL OR status >= 400)"

// QueryNetwork returns network rows matching the filter, newest first.
func (s *Store) QueryNetwork(f NetworkFilter) ([]NetworkRecord, error) {
	var where []string
	var args []any

	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	} else if f.Origin != "" {
		where = append(where, "(origin = ? OR url = ? OR url LIKE ?)")
		args = append(args, f.Origin, f.Origin, f.Origin+"/%")
	}
	if f.FailuresOnly {
		where = append(where, failureClause)
	}
	if f.ErrorClass != "" {
		where = append(where, "error_class = ?")
		args = append(args, f.ErrorClass)
	}

	q := "SELECT id, session_id, start_ts, duration_ms, method, url, origin, status, initiator, error_class, body_size FROM network"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_ts DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NetworkRecord
	for rows.Next() {
		rec, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// NetworkFailureGroup is one row of a grouped failure query.
type NetworkFailureGroup struct {
	Key        string `json:"key"`
	Count      int    `json:"count"`
	LastSeenTS int64  `json:"lastSeenTimestamp"`
}

// GroupNetworkFailures groups failing network rows by url, domain, or errorType.
func (s *Store) GroupNetworkFailures(f NetworkFilter, groupBy string) ([]NetworkFailureGroup, error) {
	var keyExpr string
	switch groupBy {
	case "url":
		keyExpr = "url"
	case "domain":
		// strip scheme and path from origin; fall back to url host-ish prefix
		keyExpr = "COALESCE(origin, url)"
	case "errorType":
		keyExpr = "COALESCE(error_class, 'http_error')"
	default:
		return nil, fmt.Errorf("groupBy must be one of url, domain, errorType")
	}

	var where []string
	var args []any
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	} else if f.Origin != "" {
		where = append(where, "(origin = ? OR url = ? OR url LIKE ?)")
		args = append(args, f.Origin, f.Origin, f.Origin+"/%")
	}
	where = append(where, failureClause)
	if f.ErrorClass != "" {
		where = append(where, "error_class = ?")
		args = append(args, f.ErrorClass)
	}

	q := fmt.Sprintf(`
SELECT %s AS k, COUNT(*), MAX(start_ts) FROM network
WHERE %s
GROUP BY k ORDER BY COUNT(*) DESC LIMIT ?`, keyExpr, strings.Join(where, " AND "))
	args = append(args, f.Limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NetworkFailureGroup
	for rows.Next() {
		var g NetworkFailureGroup
		var key sql.NullString
		if err := rows.Scan(&key, &g.Count, &g.LastSeenTS); err != nil {
			return nil, err
		}
		g.Key = key.String
		if groupBy == "domain" {
			g.Key = stripScheme(g.Key)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// NetworkFailuresInWindow returns failing network rows within the time window.
func (s *Store) NetworkFailuresInWindow(sessionID SessionID, centerTs, windowMs int64) ([]NetworkRecord, error) {
	rows, err := s.db.Query(`
SELECT id, session_id, start_ts, duration_ms, method, url, origin, status, initiator, error_class, body_size
FROM network
WHERE session_id = ? AND start_ts BETWEEN ? AND ? AND `+failureClause+`
ORDER BY start_ts ASC`, sessionID, centerTs-windowMs, centerTs+windowMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NetworkRecord
	for rows.Next() {
		rec, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LatestNetworkFailure returns the most recent failing network row, or nil.
func (s *Store) LatestNetworkFailure(sessionID SessionID) (*NetworkRecord, error) {
	row := s.db.QueryRow(`
SELECT id, session_id, start_ts, duration_ms, method, url, origin, status, initiator, error_class, body_size
FROM network
WHERE session_id = ? AND `+failureClause+`
ORDER BY start_ts DESC LIMIT 1`, sessionID)
	rec, err := scanNetwork(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// QueryErrorFingerprints returns fingerprints ordered by count desc then
// last_seen desc. sessionID may be empty for a cross-session view.
func (s *Store) QueryErrorFingerprints(sessionID SessionID, sinceMs int64, limit, offset int) ([]ErrorFingerprint, error) {
	var where []string
	var args []any
	if sessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, sessionID)
	}
	if sinceMs > 0 {
		where = append(where, "last_seen >= ?")
		args = append(args, sinceMs)
	}

	q := "SELECT fingerprint_id, session_id, count, sample_message, sample_stack, first_seen, last_seen FROM error_fingerprints"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY count DESC, last_seen DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorFingerprint
	for rows.Next() {
		var fp ErrorFingerprint
		var msg, stack sql.NullString
		if err := rows.Scan(&fp.ID, &fp.SessionID, &fp.Count, &msg, &stack,
			&fp.FirstSeen, &fp.LastSeen); err != nil {
			return nil, err
		}
		fp.SampleMessage = msg.String
		fp.SampleStack = stack.String
		out = append(out, fp)
	}
	return out, rows.Err()
}

// QueryElementRefs returns element_ref events for a session whose payload
// selector matches, newest first.
func (s *Store) QueryElementRefs(sessionID SessionID, selector string, limit, offset int) ([]Event, error) {
	rows, err := s.db.Query(`
SELECT event_id, session_id, ts, type, payload, tab_id, origin FROM events
WHERE session_id = ? AND type = 'element_ref'
  AND json_extract(payload, '$.selector') = ?
ORDER BY ts DESC LIMIT ? OFFSET ?`, sessionID, selector, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func stripScheme(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/:"); i >= 0 {
		s = s[:i]
	}
	return s
}

func scanEvent(r rowScanner) (*Event, error) {
	var ev Event
	var payload string
	var tabID sql.NullInt64
	var origin sql.NullString
	if err := r.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &ev.Kind, &payload,
		&tabID, &origin); err != nil {
		return nil, err
	}
	if tabID.Valid {
		t := int(tabID.Int64)
		ev.TabID = &t
	}
	ev.Origin = origin.String
	_ = json.Unmarshal([]byte(payload), &ev.Payload)
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func scanNetwork(r rowScanner) (*NetworkRecord, error) {
	var rec NetworkRecord
	var duration, status, bodySize sql.NullInt64
	var method, url, origin, initiator, errorClass sql.NullString
	if err := r.Scan(&rec.ID, &rec.SessionID, &rec.StartTS, &duration, &method,
		&url, &origin, &status, &initiator, &errorClass, &bodySize); err != nil {
		return nil, err
	}
	rec.DurationMs = duration.Int64
	rec.Method = method.String
	rec.URL = url.String
	rec.Origin = origin.String
	rec.Status = int(status.Int64)
	if initiator.Valid {
		rec.Initiator = &initiator.String
	}
	if errorClass.Valid {
		rec.ErrorClass = &errorClass.String
	}
	rec.BodySize = bodySize.Int64
	return &rec, nil
}
