package ui

import (
	"path/filepath"

	"github.com/sahilm/fuzzy"

	"github.com/twistedxcom/panedeck/internal/session"
)

// paneSource exposes panes to fuzzy matching by title, task and directory.
type paneSource []*session.Pane

func (s paneSource) Len() int { return len(s) }

func (s paneSource) String(i int) string {
	p := s[i]
	return p.Title + " " + p.TaskID + " " + filepath.Base(p.WorkDir)
}

// filterPanes returns collection indexes ordered best match first. An
// empty query matches every pane in order.
func filterPanes(panes []*session.Pane, query string) []int {
	if query == "" {
		out := make([]int, len(panes))
		for i := range panes {
			out[i] = i
		}
		return out
	}
	matches := fuzzy.FindFrom(query, paneSource(panes))
	out := make([]int, len(matches))
	for i, m := range matches {
		out[i] = m.Index
	}
	return out
}
