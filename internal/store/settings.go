// settings.go - The server_settings singleton row.
package store

import (
	"database/sql"
	"fmt"
)

// ensureSettings inserts the default settings row on first startup.
func (s *Store) ensureSettings() error {
	def := DefaultSettings()
	_, err := s.db.Exec(`
INSERT INTO server_settings (id, retention_days, max_db_mb, max_sessions, cleanup_interval_minutes, last_cleanup_at)
VALUES (1, ?, ?, ?, ?, 0)
ON CONFLICT(id) DO NOTHING`,
		def.RetentionDays, def.MaxDBMb, def.MaxSessions, def.CleanupIntervalMinutes)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}

// GetSettings loads the settings singleton.
func (s *Store) GetSettings() (Settings, error) {
	var out Settings
	var exportPath sql.NullString
	err := s.db.QueryRow(`
SELECT retention_days, max_db_mb, max_sessions, cleanup_interval_minutes, last_cleanup_at, export_path
FROM server_settings WHERE id = 1`).Scan(
		&out.RetentionDays, &out.MaxDBMb, &out.MaxSessions,
		&out.CleanupIntervalMinutes, &out.LastCleanupAt, &exportPath)
	if err != nil {
		return out, fmt.Errorf("read settings: %w", err)
	}
	out.ExportPath = exportPath.String
	return out, nil
}

// UpdateSettings overwrites the tunable settings fields.
func (s *Store) UpdateSettings(in Settings) error {
	var exportPath any
	if in.ExportPath != "" {
		exportPath = in.ExportPath
	}
	_, err := s.db.Exec(`
UPDATE server_settings
SET retention_days = ?, max_db_mb = ?, max_sessions = ?, cleanup_interval_minutes = ?, export_path = ?
WHERE id = 1`,
		in.RetentionDays, in.MaxDBMb, in.MaxSessions, in.CleanupIntervalMinutes, exportPath)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// TouchLastCleanup records a completed retention pass.
func (s *Store) TouchLastCleanup(ts int64) error {
	_, err := s.db.Exec("UPDATE server_settings SET last_cleanup_at = ? WHERE id = 1", ts)
	return err
}

// ResetDatabase deletes every session (cascading to all child tables) and
// sweeps the asset tree. Settings survive.
func (s *Store) ResetDatabase() error {
	if _, err := s.db.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	if _, err := s.SweepOrphanAssets(); err != nil {
		return err
	}
	return s.Vacuum()
}

// Stats aggregates row counts for the admin surface.
type Stats struct {
	Sessions     int   `json:"sessions"`
	Events       int   `json:"events"`
	Network      int   `json:"network"`
	Fingerprints int   `json:"errorFingerprints"`
	Snapshots    int   `json:"snapshots"`
	DBSizeBytes  int64 `json:"dbSizeBytes"`
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (Stats, error) {
	var st Stats
	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM sessions", &st.Sessions},
		{"SELECT COUNT(*) FROM events", &st.Events},
		{"SELECT COUNT(*) FROM network", &st.Network},
		{"SELECT COUNT(*) FROM error_fingerprints", &st.Fingerprints},
		{"SELECT COUNT(*) FROM snapshots", &st.Snapshots},
	} {
		if err := s.db.QueryRow(q.sql).Scan(q.dest); err != nil {
			return st, err
		}
	}
	size, err := s.DBSizeBytes()
	if err != nil {
		return st, err
	}
	st.DBSizeBytes = size
	return st, nil
}
