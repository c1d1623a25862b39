package screen

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/vito/midterm"
)

// Midterm adapts vito/midterm. It keeps two terminals fed with the same
// bytes: a fixed-size live grid, and an append-only grid that grows
// downward and serves as history. A nonzero scroll offset reads from the
// history, shifted up by the offset.
//
// History is kept in two generations. When the current grid passes the
// limit it becomes the previous generation and a fresh grid takes over, so
// scrollback never drops below the limit once it has been reached.
//
// All methods must be called from the same goroutine.
type Midterm struct {
	live    *midterm.Terminal
	history *midterm.Terminal

	prev      *midterm.Terminal
	prevLines int

	rows, cols int
	limit      int
	offset     int
}

// NewMidterm returns a midterm-backed screen keeping up to limit lines of
// history. A limit below one uses DefaultScrollback.
func NewMidterm(rows, cols, limit int) *Midterm {
	if limit < 1 {
		limit = DefaultScrollback
	}
	m := &Midterm{rows: rows, cols: cols, limit: limit}
	m.live = midterm.NewTerminal(rows, cols)
	// A terminal starts with the cursor shown; midterm waits for DECTCEM.
	m.live.CursorVisible = true
	m.resetHistory()
	return m
}

func (m *Midterm) resetHistory() {
	m.history = midterm.NewTerminal(m.rows, m.cols)
	m.history.AutoResizeY = true
	m.history.AppendOnly = true
}

// rotateHistory retires the current grid as the previous generation. An
// empty cursor line is not kept; output continues on the new grid.
func (m *Midterm) rotateHistory() {
	lines := m.historyLines()
	if m.history.Cursor.X == 0 && lines > 0 && lines == m.history.Cursor.Y+1 {
		lines--
	}
	m.prev, m.prevLines = m.history, lines
	m.resetHistory()
}

// historyLines is how many lines the current append-only grid has produced.
func (m *Midterm) historyLines() int {
	n := m.history.Cursor.Y + 1
	if n > len(m.history.Content) {
		n = len(m.history.Content)
	}
	return n
}

func (m *Midterm) totalLines() int { return m.prevLines + m.historyLines() }

// historyLine maps a line of the combined history to its grid and row.
func (m *Midterm) historyLine(line int) (*midterm.Terminal, int) {
	if line < m.prevLines {
		return m.prev, line
	}
	return m.history, line - m.prevLines
}

func (m *Midterm) Scrollback() int {
	n := m.totalLines() - m.rows
	if n <= 0 {
		return 0
	}
	return min(n, m.limit)
}

func (m *Midterm) ScrollBy(delta int) {
	m.offset = clampScroll(m.offset+delta, m.Scrollback())
}

func (m *Midterm) ScrollOffset() int { return m.offset }

func (m *Midterm) Size() (int, int) { return m.rows, m.cols }

func (m *Midterm) CursorPosition() (int, int) {
	return m.live.Cursor.Y, m.live.Cursor.X
}

func (m *Midterm) HideCursor() bool {
	return m.offset > 0 || !m.live.CursorVisible
}

func (m *Midterm) Cell(row, col int) (Cell, bool) {
	if row < 0 || col < 0 || row >= m.rows || col >= m.cols {
		return nil, false
	}
	term, line := m.live, row
	if m.offset > 0 {
		abs := m.totalLines() - m.rows - m.offset + row
		if abs < 0 {
			return blankCell{}, true
		}
		term, line = m.historyLine(abs)
	}
	if line >= len(term.Content) || col >= len(term.Content[line]) {
		return blankCell{}, true
	}
	return midtermCell{r: term.Content[line][col], f: formatAt(term, line, col)}, true
}

func formatAt(term *midterm.Terminal, row, col int) midterm.Format {
	pos := 0
	for region := range term.Format.Regions(row) {
		if col < pos+region.Size {
			return region.F
		}
		pos += region.Size
	}
	return midterm.Format{}
}

// Write feeds output to both grids. When the current history grid passes
// the limit it is rotated; the live grid is unaffected.
func (m *Midterm) Write(p []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = len(p), nil
		}
	}()
	if _, err := m.live.Write(p); err != nil {
		return 0, err
	}
	if _, err := m.history.Write(p); err != nil {
		return 0, err
	}
	if m.historyLines() > m.limit+m.rows {
		m.rotateHistory()
	}
	m.offset = clampScroll(m.offset, m.Scrollback())
	return len(p), nil
}

// Resize changes the live grid. The append-only grid cannot change width
// in place, so a width change starts a new generation at the new size; the
// old lines stay readable as the previous generation.
func (m *Midterm) Resize(rows, cols int) {
	if rows < 1 || cols < 1 || (rows == m.rows && cols == m.cols) {
		return
	}
	widthChanged := cols != m.cols
	m.rows, m.cols = rows, cols
	m.live.Resize(rows, cols)
	if widthChanged {
		m.rotateHistory()
	}
	m.offset = clampScroll(m.offset, m.Scrollback())
}

type midtermCell struct {
	r rune
	f midterm.Format
}

func (c midtermCell) Apply(dst *BufferCell) {
	dst.Reset()
	if c.r != 0 {
		dst.Rune = c.r
	}
	dst.Fg = termenvColor(c.f.Fg)
	dst.Bg = termenvColor(c.f.Bg)
	dst.Bold = c.f.IsBold()
	dst.Italic = c.f.IsItalic()
	dst.Underline = c.f.IsUnderline()
	dst.Inverse = c.f.IsReverse()
}

type blankCell struct{}

func (blankCell) Apply(dst *BufferCell) { dst.Reset() }

func termenvColor(c termenv.Color) lipgloss.TerminalColor {
	switch v := c.(type) {
	case termenv.ANSIColor:
		return NamedColor(int(v))
	case termenv.ANSI256Color:
		return IndexedColor(int(v))
	case termenv.RGBColor:
		return HexColor(string(v))
	default:
		return DefaultColor
	}
}
