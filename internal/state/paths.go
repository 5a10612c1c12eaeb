// Package state centralizes filesystem locations for firelens runtime artifacts.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDirEnv overrides the default data directory root.
	DataDirEnv = "FIRELENS_DATA_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "firelens"

	// DBFileName is the SQLite database file inside the data directory.
	DBFileName = "browser-debug.db"

	// SnapshotAssetsDirName holds snapshot PNG binaries, one subdirectory per session.
	SnapshotAssetsDirName = "snapshot-assets"
)

// DataDir returns the data directory for firelens.
// Resolution order:
//  1. FIRELENS_DATA_DIR (if set)
//  2. XDG_STATE_HOME/firelens (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/firelens (cross-platform fallback)
func DataDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(DataDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// DBPath returns the database file path under dataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// SnapshotAssetsDir returns the snapshot asset root under dataDir.
func SnapshotAssetsDir(dataDir string) string {
	return filepath.Join(dataDir, SnapshotAssetsDirName)
}

// EnsureDataDir resolves the data directory and creates it if missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// normalizePath expands a leading ~ and converts the path to an absolute one.
func normalizePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return abs, nil
}
