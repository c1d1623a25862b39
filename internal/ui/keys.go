package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds the navigation-mode bindings. In focus mode only Unfocus is
// interpreted; every other key goes to the pane.
type keyMap struct {
	Next       key.Binding
	Prev       key.Binding
	Focus      key.Binding
	Unfocus    key.Binding
	Layout     key.Binding
	NewPane    key.Binding
	NewShell   key.Binding
	Remove     key.Binding
	RemoveTree key.Binding
	Retry      key.Binding
	Filter     key.Binding
	Copy       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:       key.NewBinding(key.WithKeys("tab", "right", "l", "down", "j"), key.WithHelp("tab", "next")),
		Prev:       key.NewBinding(key.WithKeys("shift+tab", "left", "h", "up", "k"), key.WithHelp("S-tab", "prev")),
		Focus:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "focus")),
		Unfocus:    key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("C-q", "back")),
		Layout:     key.NewBinding(key.WithKeys("L", "ctrl+l"), key.WithHelp("L", "layout")),
		NewPane:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new worktree")),
		NewShell:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shell")),
		Remove:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close")),
		RemoveTree: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "close+delete")),
		Retry:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "respawn")),
		Filter:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "find")),
		Copy:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// navigationHelp is the status bar hint line.
func (k keyMap) navigationHelp() string {
	bindings := []key.Binding{k.Next, k.Focus, k.Layout, k.NewPane, k.NewShell, k.Remove, k.RemoveTree, k.Retry, k.Filter, k.Copy, k.ScrollUp, k.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		if h.Key == "" {
			continue
		}
		parts = append(parts, MenuKey(h.Key, h.Desc))
	}
	return strings.Join(parts, "  ")
}

// keyBytes translates a key press into what a terminal would send to the
// child. Unknown keys yield nil.
func keyBytes(msg tea.KeyMsg) []byte {
	var out []byte
	switch msg.Type {
	case tea.KeyRunes:
		out = []byte(string(msg.Runes))
		if msg.Paste {
			out = append(append([]byte("\x1b[200~"), out...), "\x1b[201~"...)
		}
	case tea.KeySpace:
		out = []byte{' '}
	case tea.KeyUp:
		out = []byte("\x1b[A")
	case tea.KeyDown:
		out = []byte("\x1b[B")
	case tea.KeyRight:
		out = []byte("\x1b[C")
	case tea.KeyLeft:
		out = []byte("\x1b[D")
	case tea.KeyHome:
		out = []byte("\x1b[H")
	case tea.KeyEnd:
		out = []byte("\x1b[F")
	case tea.KeyPgUp:
		out = []byte("\x1b[5~")
	case tea.KeyPgDown:
		out = []byte("\x1b[6~")
	case tea.KeyDelete:
		out = []byte("\x1b[3~")
	case tea.KeyInsert:
		out = []byte("\x1b[2~")
	case tea.KeyShiftTab:
		out = []byte("\x1b[Z")
	case tea.KeyF1:
		out = []byte("\x1bOP")
	case tea.KeyF2:
		out = []byte("\x1bOQ")
	case tea.KeyF3:
		out = []byte("\x1bOR")
	case tea.KeyF4:
		out = []byte("\x1bOS")
	default:
		// Control keys carry their ASCII code as the key type.
		if msg.Type >= 0 && msg.Type <= 31 || msg.Type == 127 {
			out = []byte{byte(msg.Type)}
		}
	}
	if out == nil {
		return nil
	}
	if msg.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}
