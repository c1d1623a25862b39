package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/twistedxcom/panedeck/internal/logging"
)

var storageLog = logging.ForComponent(logging.CompStorage)

// LayoutVersion is bumped when the document shape changes.
const LayoutVersion = 1

// LayoutDoc is what survives a restart: geometry, directories and the
// layout mode. Processes and output are never persisted.
type LayoutDoc struct {
	Version   int         `json:"version"`
	Layout    string      `json:"layout"`
	Selected  int         `json:"selected"`
	Panes     []PaneEntry `json:"panes"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PaneEntry is one persisted pane.
type PaneEntry struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id"`
	Title   string `json:"title,omitempty"`
	WorkDir string `json:"work_dir"`
	Rows    int    `json:"rows"`
	Cols    int    `json:"cols"`
}

// Storage reads and writes the layout document.
type Storage struct {
	path string
}

// NewStorage uses path, or the default layout path when empty.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := GetLayoutPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Storage{path: path}, nil
}

func (s *Storage) Path() string { return s.path }

// Snapshot captures the collection as a document.
func Snapshot(c *Collection) *LayoutDoc {
	doc := &LayoutDoc{
		Version:  LayoutVersion,
		Layout:   c.Layout().String(),
		Selected: c.SelectedIndex(),
		Panes:    make([]PaneEntry, 0, c.Len()),
	}
	for _, p := range c.Panes() {
		doc.Panes = append(doc.Panes, PaneEntry{
			ID:      p.ID,
			TaskID:  p.TaskID,
			Title:   p.Title,
			WorkDir: p.WorkDir,
			Rows:    p.Rows,
			Cols:    p.Cols,
		})
	}
	return doc
}

// Save writes the collection atomically: temp file, fsync, rename.
func (s *Storage) Save(c *Collection) error {
	doc := Snapshot(c)
	doc.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create layout directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp layout: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		storageLog.Warn("layout_fsync_failed", slog.String("path", tmp), slog.String("error", err.Error()))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize layout save: %w", err)
	}
	storageLog.Debug("layout_saved", slog.String("path", s.path), slog.Int("panes", len(doc.Panes)))
	return nil
}

// Load reads the document. A missing file is an empty layout, not an error.
func (s *Storage) Load() (*LayoutDoc, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &LayoutDoc{Version: LayoutVersion, Selected: -1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	var doc LayoutDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse layout %s: %w", s.path, err)
	}
	if doc.Version > LayoutVersion {
		return nil, fmt.Errorf("layout %s has version %d, newer than supported %d", s.path, doc.Version, LayoutVersion)
	}
	return &doc, nil
}

// Restore rebuilds a collection from a document. Panes come back idle and
// without processes; entries whose directory has vanished are skipped.
// base supplies the backend, buffer and shell command settings.
func Restore(doc *LayoutDoc, base PaneOptions) (*Collection, error) {
	c := NewCollection()
	if doc == nil {
		return c, nil
	}
	for _, e := range doc.Panes {
		if info, err := os.Stat(e.WorkDir); err != nil || !info.IsDir() {
			storageLog.Info("layout_pane_skipped", slog.String("pane", e.ID), slog.String("dir", e.WorkDir))
			continue
		}
		opts := base
		opts.ID = e.ID
		opts.TaskID = e.TaskID
		opts.Title = e.Title
		opts.WorkDir = e.WorkDir
		opts.Rows, opts.Cols = e.Rows, e.Cols
		p, err := NewPane(opts)
		if err != nil {
			return nil, err
		}
		c.Add(p)
	}
	c.SetLayout(ParseLayoutMode(doc.Layout))
	if !c.Select(doc.Selected) && c.Len() > 0 {
		c.Select(0)
	}
	return c, nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
