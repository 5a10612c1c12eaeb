// sessions.go - Session row lifecycle: create, end, pin, list, delete.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateSession inserts a session row from a session_start frame. Re-issuing
// session_start with the same id (agent reconnect) is a no-op apart from
// refreshing the latest URL.
func (s *Store) CreateSession(meta SessionMeta, createdAt int64) (SessionID, error) {
	id := meta.ID
	if id == "" {
		id = MintSessionID(msToTime(createdAt))
	}

	var tabIDs any
	if meta.TabID != nil {
		b, _ := json.Marshal([]int{*meta.TabID})
		tabIDs = string(b)
	}

	_, err := s.db.Exec(`
INSERT INTO sessions (session_id, created_at, tab_ids, window_id, url_initial, url_last,
                      user_agent, viewport_w, viewport_h, dpr, safe_mode)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET url_last = excluded.url_last, ended_at = NULL`,
		id, createdAt, tabIDs, meta.WindowID, meta.URL, meta.URL,
		meta.UserAgent, meta.ViewportW, meta.ViewportH, meta.DPR, boolInt(meta.SafeMode))
	if err != nil {
		return "", fmt.Errorf("create session %s: %w", id, err)
	}
	return id, nil
}

// EndSession sets ended_at if not already set. Idempotent.
func (s *Store) EndSession(id SessionID, endedAt int64) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET ended_at = COALESCE(ended_at, ?) WHERE session_id = ?",
		endedAt, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// SessionExists reports whether the session row is present.
func (s *Store) SessionExists(id SessionID) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM sessions WHERE session_id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PinSession sets or clears the pin that protects a session from retention.
func (s *Store) PinSession(id SessionID, pinned bool) error {
	res, err := s.db.Exec("UPDATE sessions SET pinned = ? WHERE session_id = ?",
		boolInt(pinned), id)
	if err != nil {
		return fmt.Errorf("pin session %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession loads a single session row.
func (s *Store) GetSession(id SessionID) (*Session, error) {
	row := s.db.QueryRow(`
SELECT session_id, created_at, ended_at, tab_ids, window_id, url_initial, url_last,
       user_agent, viewport_w, viewport_h, dpr, safe_mode, pinned
FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, err
}

// ListRecentSessions returns sessions ordered by created_at desc. sinceMs of 0
// means no lower bound. Callers pass limit+1 to detect truncation.
func (s *Store) ListRecentSessions(sinceMs int64, limit, offset int) ([]Session, error) {
	rows, err := s.db.Query(`
SELECT session_id, created_at, ended_at, tab_ids, window_id, url_initial, url_last,
       user_agent, viewport_w, viewport_h, dpr, safe_mode, pinned
FROM sessions
WHERE created_at >= ?
ORDER BY created_at DESC
LIMIT ? OFFSET ?`, sinceMs, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// CountSessions returns the total number of session rows.
func (s *Store) CountSessions() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

// OldestUnpinnedBefore returns the oldest unpinned session created before
// cutoffMs, or "" if none. cutoffMs <= 0 means no cutoff.
func (s *Store) OldestUnpinnedBefore(cutoffMs int64) (SessionID, error) {
	q := "SELECT session_id FROM sessions WHERE pinned = 0"
	args := []any{}
	if cutoffMs > 0 {
		q += " AND created_at < ?"
		args = append(args, cutoffMs)
	}
	q += " ORDER BY created_at ASC LIMIT 1"

	var id SessionID
	err := s.db.QueryRow(q, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// DeleteSession removes a session row; foreign keys cascade to events,
// network, fingerprints, and snapshot rows. Asset files are left for the
// orphan sweep.
func (s *Store) DeleteSession(id SessionID) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// SessionSummary aggregates counts and the time range for one session.
type SessionSummary struct {
	SessionID       SessionID `json:"sessionId"`
	ErrorCount      int       `json:"errorCount"`
	ConsoleWarns    int       `json:"consoleWarnCount"`
	NetworkFailures int       `json:"networkFailureCount"`
	FirstEventTS    *int64    `json:"firstEventTimestamp,omitempty"`
	LastEventTS     *int64    `json:"lastEventTimestamp,omitempty"`
	LastURL         string    `json:"lastUrl,omitempty"`
}

// GetSessionSummary computes error/warn/network-failure counts, the event time
// range, and the last known URL (latest nav event, else sessions.url_last).
func (s *Store) GetSessionSummary(id SessionID) (*SessionSummary, error) {
	sum := &SessionSummary{SessionID: id}

	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE session_id = ? AND type = 'error'", id).
		Scan(&sum.ErrorCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
SELECT COUNT(*) FROM events
WHERE session_id = ? AND type = 'console'
  AND json_extract(payload, '$.level') = 'warn'`, id).Scan(&sum.ConsoleWarns)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
SELECT COUNT(*) FROM network
WHERE session_id = ? AND (error_class IS NOT NULL OR status >= 400)`, id).
		Scan(&sum.NetworkFailures)
	if err != nil {
		return nil, err
	}

	var minTS, maxTS sql.NullInt64
	err = s.db.QueryRow(
		"SELECT MIN(ts), MAX(ts) FROM events WHERE session_id = ?", id).
		Scan(&minTS, &maxTS)
	if err != nil {
		return nil, err
	}
	if minTS.Valid {
		sum.FirstEventTS = &minTS.Int64
		sum.LastEventTS = &maxTS.Int64
	}

	var navURL sql.NullString
	err = s.db.QueryRow(`
SELECT COALESCE(json_extract(payload, '$.to'), json_extract(payload, '$.url'))
FROM events WHERE session_id = ? AND type = 'nav'
ORDER BY ts DESC LIMIT 1`, id).Scan(&navURL)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if navURL.Valid && navURL.String != "" {
		sum.LastURL = navURL.String
	} else {
		var urlLast sql.NullString
		if err := s.db.QueryRow(
			"SELECT url_last FROM sessions WHERE session_id = ?", id).Scan(&urlLast); err != nil {
			return nil, err
		}
		sum.LastURL = urlLast.String
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var sess Session
	var endedAt sql.NullInt64
	var tabIDs, urlInitial, urlLast, userAgent sql.NullString
	var windowID sql.NullInt64
	var viewportW, viewportH sql.NullInt64
	var dpr sql.NullFloat64
	var safeMode, pinned int

	err := r.Scan(&sess.ID, &sess.CreatedAt, &endedAt, &tabIDs, &windowID,
		&urlInitial, &urlLast, &userAgent, &viewportW, &viewportH, &dpr,
		&safeMode, &pinned)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Int64
	}
	if tabIDs.Valid && tabIDs.String != "" {
		_ = json.Unmarshal([]byte(tabIDs.String), &sess.TabIDs)
	}
	if windowID.Valid {
		w := int(windowID.Int64)
		sess.WindowID = &w
	}
	sess.URLInitial = urlInitial.String
	sess.URLLast = urlLast.String
	sess.UserAgent = userAgent.String
	sess.ViewportW = int(viewportW.Int64)
	sess.ViewportH = int(viewportH.Int64)
	sess.DPR = dpr.Float64
	sess.SafeMode = safeMode != 0
	sess.Pinned = pinned != 0
	return &sess, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
