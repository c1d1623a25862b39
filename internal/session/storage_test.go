package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageRoundTrip(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "nested", "layout.json"))
	require.NoError(t, err)

	c := NewCollection()
	a := newTestPane(t, "task-a")
	a.Command = []string{"claude"}
	b := newTestPane(t, "task-b")
	b.Resize(30, 120)
	c.Add(a)
	c.Add(b)
	c.Select(0)
	c.SetLayout(LayoutGrid)
	a.State = StateRunning

	require.NoError(t, s.Save(c))
	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, LayoutVersion, doc.Version)
	assert.Equal(t, "grid", doc.Layout)
	require.Len(t, doc.Panes, 2)
	assert.Equal(t, PaneEntry{
		ID: a.ID, TaskID: "task-a", Title: "task-a", WorkDir: a.WorkDir,
		Rows: 10, Cols: 40,
	}, doc.Panes[0])

	restored, err := Restore(doc, PaneOptions{Command: []string{"/bin/sh"}})
	require.NoError(t, err)
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, LayoutGrid, restored.Layout())
	assert.Equal(t, 0, restored.SelectedIndex())

	ra := restored.FindByTask("task-a")
	require.NotNil(t, ra)
	assert.Equal(t, a.ID, ra.ID)
	assert.Equal(t, StateIdle, ra.State, "state is never persisted")
	assert.Nil(t, ra.Session)
	assert.Equal(t, []string{"/bin/sh"}, ra.Command, "panes come back as shells")

	rb := restored.FindByTask("task-b")
	require.NotNil(t, rb)
	assert.Equal(t, 30, rb.Rows)
	assert.Equal(t, 120, rb.Cols)
	assert.Equal(t, []string{"/bin/sh"}, rb.Command)
}

func TestStorageDocumentShape(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "layout.json"))
	require.NoError(t, err)
	c := NewCollection()
	c.Add(newTestPane(t, "x"))
	require.NoError(t, s.Save(c))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"version", "layout", "selected", "panes"} {
		assert.Contains(t, doc, key)
	}
	pane := doc["panes"].([]any)[0].(map[string]any)
	for _, key := range []string{"id", "task_id", "work_dir", "rows", "cols"} {
		assert.Contains(t, pane, key)
	}
	assert.NotContains(t, pane, "state")
	assert.NotContains(t, pane, "output")
}

func TestStorageLoadMissingFile(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Panes)

	c, err := Restore(doc, PaneOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, -1, c.SelectedIndex())
}

func TestStorageLoadErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	s, _ := NewStorage(bad)
	_, err := s.Load()
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":99,"panes":[]}`), 0o600))
	s, _ = NewStorage(future)
	_, err = s.Load()
	assert.ErrorContains(t, err, "newer than supported")
}

func TestRestoreSkipsVanishedDirectories(t *testing.T) {
	keep := t.TempDir()
	doc := &LayoutDoc{
		Version:  LayoutVersion,
		Layout:   "vertical",
		Selected: 1,
		Panes: []PaneEntry{
			{ID: "1", TaskID: "gone", WorkDir: filepath.Join(keep, "deleted"), Rows: 5, Cols: 5},
			{ID: "2", TaskID: "kept", WorkDir: keep, Rows: 5, Cols: 5},
		},
	}
	c, err := Restore(doc, PaneOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "kept", c.At(0).TaskID)
	assert.Equal(t, 0, c.SelectedIndex(), "out-of-range selection falls back to first pane")
	assert.Equal(t, LayoutVerticalSplit, c.Layout())
}

func TestNewStorageDefaultPath(t *testing.T) {
	s, err := NewStorage("")
	require.NoError(t, err)
	want, err := GetLayoutPath()
	require.NoError(t, err)
	assert.Equal(t, want, s.Path())
	assert.Equal(t, LayoutFileName, filepath.Base(s.Path()))
}
