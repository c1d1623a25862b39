package screen

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/hinshun/vt10x"
)

// vt10x keeps its glyph attribute bits unexported; these mirror its order.
const (
	vtAttrReverse = 1 << iota
	vtAttrUnderline
	vtAttrBold
	vtAttrGfx
	vtAttrItalic
	vtAttrBlink
	vtAttrWrap
)

// vtDefaultColorBase is where vt10x starts its sentinel colors
// (DefaultFG, DefaultBG, DefaultCursor). Values 256 up to it are packed RGB.
const vtDefaultColorBase = 1 << 24

// VT10x adapts hinshun/vt10x. It has no scrollback, so ScrollBy is a no-op.
// All methods must be called from the same goroutine.
type VT10x struct {
	term vt10x.Terminal
}

// NewVT10x returns a vt10x-backed screen of the given size.
func NewVT10x(rows, cols int) *VT10x {
	return &VT10x{term: vt10x.New(vt10x.WithSize(cols, rows))}
}

func (v *VT10x) Cell(row, col int) (Cell, bool) {
	rows, cols := v.Size()
	if row < 0 || col < 0 || row >= rows || col >= cols {
		return nil, false
	}
	return vtCell(v.term.Cell(col, row)), true
}

func (v *VT10x) Size() (int, int) {
	cols, rows := v.term.Size()
	return rows, cols
}

func (v *VT10x) CursorPosition() (int, int) {
	c := v.term.Cursor()
	return c.Y, c.X
}

func (v *VT10x) HideCursor() bool { return !v.term.CursorVisible() }

func (v *VT10x) Scrollback() int { return 0 }

func (v *VT10x) ScrollBy(int) {}

func (v *VT10x) ScrollOffset() int { return 0 }

// Write feeds output to the parser. A parser panic on hostile input is
// swallowed and the bytes are reported as consumed.
func (v *VT10x) Write(p []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = len(p), nil
		}
	}()
	return v.term.Write(p)
}

func (v *VT10x) Resize(rows, cols int) {
	if rows < 1 || cols < 1 {
		return
	}
	v.term.Resize(cols, rows)
}

type vtCell vt10x.Glyph

func (c vtCell) Apply(dst *BufferCell) {
	dst.Reset()
	if c.Char != 0 {
		dst.Rune = c.Char
	}
	dst.Fg = vtColor(c.FG)
	dst.Bg = vtColor(c.BG)
	dst.Bold = c.Mode&vtAttrBold != 0
	dst.Italic = c.Mode&vtAttrItalic != 0
	dst.Underline = c.Mode&vtAttrUnderline != 0
	dst.Inverse = c.Mode&vtAttrReverse != 0
}

func vtColor(c vt10x.Color) lipgloss.TerminalColor {
	switch {
	case c < 16:
		return NamedColor(int(c))
	case c < 256:
		return IndexedColor(int(c))
	case c < vtDefaultColorBase:
		return RGBColor(uint8(c>>16), uint8(c>>8), uint8(c))
	default:
		return DefaultColor
	}
}
