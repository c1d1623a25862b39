package ui

import (
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/twistedxcom/panedeck/internal/screen"
	"github.com/twistedxcom/panedeck/internal/session"
)

// TestMain keeps layout saves and config reads out of the real ~/.panedeck.
func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "panedeck-ui-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv(session.EnvHome, home)

	code := m.Run()

	_ = os.RemoveAll(home)
	os.Exit(code)
}

// newTestPane builds a pane without a process.
func newTestPane(t *testing.T, task, title string) *session.Pane {
	t.Helper()
	p, err := session.NewPane(session.PaneOptions{
		TaskID:  task,
		Title:   title,
		WorkDir: t.TempDir(),
		Rows:    10,
		Cols:    40,
		Backend: screen.BackendVT10x,
	})
	if err != nil {
		t.Fatalf("NewPane: %v", err)
	}
	return p
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// runCmd executes cmd and any batch it expands to, collecting messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}
