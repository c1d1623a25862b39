package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Keep tests away from the real ~/.panedeck.
	home, err := os.MkdirTemp("", "panedeck-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv(EnvHome, home)

	code := m.Run()

	_ = os.RemoveAll(home)
	os.Exit(code)
}

// newTestPane builds a pane without a process.
func newTestPane(t *testing.T, task string) *Pane {
	t.Helper()
	p, err := NewPane(PaneOptions{TaskID: task, Title: task, WorkDir: t.TempDir(), Rows: 10, Cols: 40})
	require.NoError(t, err)
	return p
}
