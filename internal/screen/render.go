package screen

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type cellStyle struct {
	fg, bg                               lipgloss.TerminalColor
	bold, italic, underline, inverse bool
}

func styleOf(c *BufferCell) cellStyle {
	return cellStyle{c.Fg, c.Bg, c.Bold, c.Italic, c.Underline, c.Inverse}
}

func (s cellStyle) plain() bool {
	_, fgDefault := s.fg.(lipgloss.NoColor)
	_, bgDefault := s.bg.(lipgloss.NoColor)
	return fgDefault && bgDefault && !s.bold && !s.italic && !s.underline && !s.inverse
}

func (s cellStyle) render(text string) string {
	if s.plain() {
		return text
	}
	return lipgloss.NewStyle().
		Foreground(s.fg).
		Background(s.bg).
		Bold(s.bold).
		Italic(s.italic).
		Underline(s.underline).
		Reverse(s.inverse).
		Render(text)
}

// Render draws the visible grid as styled lines. When showCursor is set
// and the screen reports a visible cursor, that cell is drawn inverted.
// Runs of equally styled cells share one escape sequence.
func Render(s Screen, showCursor bool) string {
	rows, cols := s.Size()
	curRow, curCol := -1, -1
	if showCursor && !s.HideCursor() && s.ScrollOffset() == 0 {
		curRow, curCol = s.CursorPosition()
	}

	var out strings.Builder
	var run strings.Builder
	var buf BufferCell
	for r := 0; r < rows; r++ {
		if r > 0 {
			out.WriteByte('\n')
		}
		run.Reset()
		var cur cellStyle
		width := 0
		pad := false
		for c := 0; c < cols; c++ {
			buf.Reset()
			if cell, ok := s.Cell(r, c); ok {
				cell.Apply(&buf)
			}
			// Engines that track wide glyphs leave a blank after them.
			if pad {
				pad = false
				if buf.Rune == ' ' {
					continue
				}
			}
			if r == curRow && c == curCol {
				buf.Inverse = !buf.Inverse
			}
			w := runewidth.RuneWidth(buf.Rune)
			if w == 0 {
				// Continuation of a wide glyph or a control rune.
				if buf.Rune >= 0x20 {
					continue
				}
				buf.Rune, w = ' ', 1
			}
			if width+w > cols {
				break
			}
			st := styleOf(&buf)
			if run.Len() > 0 && st != cur {
				out.WriteString(cur.render(run.String()))
				run.Reset()
			}
			cur = st
			run.WriteRune(buf.Rune)
			width += w
			pad = w == 2
		}
		if run.Len() > 0 {
			out.WriteString(cur.render(run.String()))
		}
	}
	return out.String()
}

// PlainText returns the visible grid without styling, trailing spaces
// trimmed from each line.
func PlainText(s Screen) string {
	rows, cols := s.Size()
	lines := make([]string, rows)
	var buf BufferCell
	for r := 0; r < rows; r++ {
		var b strings.Builder
		pad := false
		for c := 0; c < cols; c++ {
			buf.Reset()
			if cell, ok := s.Cell(r, c); ok {
				cell.Apply(&buf)
			}
			if pad && buf.Rune == ' ' {
				pad = false
				continue
			}
			if buf.Rune < 0x20 {
				buf.Rune = ' '
			}
			b.WriteRune(buf.Rune)
			pad = runewidth.RuneWidth(buf.Rune) == 2
		}
		lines[r] = strings.TrimRight(b.String(), " ")
	}
	return strings.Join(lines, "\n")
}
