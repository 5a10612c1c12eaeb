// store.go - SQLite-backed telemetry store: open, pragmas, migrations.
// One database file per workstation. WAL journaling and foreign keys are
// always on; schema evolves through append-only versioned migrations.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/firelens/firelens/internal/state"
)

// Store owns all persisted rows and the snapshot asset tree. All writes from
// ingest, retention, and import flow through its methods.
type Store struct {
	db      *sql.DB
	dataDir string
	log     zerolog.Logger

	// event id minting, monotonic per millisecond
	idMu     sync.Mutex
	lastMs   int64
	lastSeq  int
}

// Open opens (creating if needed) the database under dataDir and applies any
// pending migrations. A migration failure is fatal to the caller.
func Open(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := state.DBPath(dataDir)

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	// Single writer; SQLite serializes writes anyway and a single connection
	// avoids SQLITE_BUSY churn between ingest and retention.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dataDir: dataDir, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureSettings(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the directory holding the database file and snapshot assets.
func (s *Store) DataDir() string {
	return s.dataDir
}

// DBSizeBytes returns the size of the database file plus its WAL.
func (s *Store) DBSizeBytes() (int64, error) {
	dbPath := state.DBPath(s.dataDir)
	var total int64
	for _, p := range []string{dbPath, dbPath + "-wal"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Vacuum compacts the database file. Run after bulk deletions.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// migrate applies every migration above the recorded schema version, in order,
// each inside its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(
		"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		s.log.Info().Int("version", m.version).Msg("applied schema migration")
	}
	return nil
}

// assetsRoot returns the snapshot asset root directory.
func (s *Store) assetsRoot() string {
	return state.SnapshotAssetsDir(s.dataDir)
}

// resolveAssetPath resolves a stored relative asset path against the data
// directory, rejecting any path that escapes the asset root.
func (s *Store) resolveAssetPath(rel string) (string, error) {
	root := s.assetsRoot()
	abs := filepath.Join(s.dataDir, rel)
	cleanRoot := filepath.Clean(root) + string(filepath.Separator)
	if filepath.Clean(abs) != filepath.Clean(root) &&
		!hasPathPrefix(filepath.Clean(abs), cleanRoot) {
		return "", fmt.Errorf("asset path %q escapes snapshot asset root", rel)
	}
	return filepath.Clean(abs), nil
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}
