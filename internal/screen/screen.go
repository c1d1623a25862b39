// Package screen decouples pane rendering from the ANSI engine that parses a
// pane's output. Each engine is wrapped in an adapter satisfying Screen; the
// renderer only ever holds the interface.
package screen

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Backend names accepted by New.
const (
	BackendVT10x   = "vt10x"
	BackendMidterm = "midterm"
)

// DefaultScrollback is the history kept by scrollback-aware backends.
const DefaultScrollback = 2000

// BufferCell is the renderer-owned cell that adapters write into.
type BufferCell struct {
	Rune      rune
	Fg        lipgloss.TerminalColor
	Bg        lipgloss.TerminalColor
	Bold      bool
	Italic    bool
	Underline bool
	Inverse   bool
}

// Reset clears the cell to a blank with default colors.
func (c *BufferCell) Reset() {
	*c = BufferCell{Rune: ' ', Fg: lipgloss.NoColor{}, Bg: lipgloss.NoColor{}}
}

// Cell is one grid position of a backend.
type Cell interface {
	// Apply writes glyph, colors and attributes into dst.
	Apply(dst *BufferCell)
}

// Screen is the capability set a terminal-emulation backend must provide.
// Row and column are zero-based and relative to the visible viewport.
type Screen interface {
	// Cell returns the cell at (row, col) or false when out of range.
	Cell(row, col int) (Cell, bool)
	Size() (rows, cols int)
	CursorPosition() (row, col int)
	HideCursor() bool
	// Scrollback is the number of history lines above the live viewport.
	Scrollback() int

	// Write feeds raw pty output to the parser.
	Write(p []byte) (int, error)
	Resize(rows, cols int)
	// ScrollBy moves the viewport into history; positive is up.
	// Backends without scrollback ignore it.
	ScrollBy(delta int)
	ScrollOffset() int
}

// New builds a Screen for the named backend.
func New(backend string, rows, cols, scrollback int) (Screen, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("invalid screen geometry %dx%d", rows, cols)
	}
	switch backend {
	case BackendVT10x:
		return NewVT10x(rows, cols), nil
	case BackendMidterm, "":
		return NewMidterm(rows, cols, scrollback), nil
	default:
		return nil, fmt.Errorf("unknown screen backend %q", backend)
	}
}

// Backends lists the names accepted by New.
func Backends() []string {
	return []string{BackendMidterm, BackendVT10x}
}

func clampScroll(offset, max int) int {
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}
