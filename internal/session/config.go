package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// EnvHome overrides the data directory (tests point it at a temp dir).
	EnvHome = "PANEDECK_HOME"

	// LayoutFileName holds the persisted pane layout.
	LayoutFileName = "layout.json"

	// JournalFileName is the SQLite hook event journal.
	JournalFileName = "events.db"
)

var (
	dirOverride   string
	dirOverrideMu sync.RWMutex
)

// SetPanedeckDir points the data directory somewhere else for this process.
// An empty dir restores the default.
func SetPanedeckDir(dir string) {
	dirOverrideMu.Lock()
	dirOverride = expandTilde(dir)
	dirOverrideMu.Unlock()
	ClearUserConfigCache()
}

// GetPanedeckDir returns the data directory: the override, $PANEDECK_HOME,
// or ~/.panedeck.
func GetPanedeckDir() (string, error) {
	dirOverrideMu.RLock()
	dir := dirOverride
	dirOverrideMu.RUnlock()
	if dir != "" {
		return dir, nil
	}
	if env := os.Getenv(EnvHome); env != "" {
		return expandTilde(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".panedeck"), nil
}

// GetLayoutPath returns the path of the persisted layout document.
func GetLayoutPath() (string, error) {
	dir, err := GetPanedeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LayoutFileName), nil
}

// GetJournalPath returns the path of the hook event journal.
func GetJournalPath() (string, error) {
	dir, err := GetPanedeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, JournalFileName), nil
}

// expandTilde expands a leading ~ and refuses paths that escape home.
func expandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	cleaned := filepath.Clean(filepath.Join(home, path[2:]))
	if !strings.HasPrefix(cleaned, home) {
		storageLog.Warn("path_traversal_detected", slog.String("path", path))
		return path
	}
	return cleaned
}
