package screen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// namedColors maps the 16 ANSI palette slots (8 normal + 8 bright).
var namedColors = [16]lipgloss.Color{
	"0", "1", "2", "3", "4", "5", "6", "7",
	"8", "9", "10", "11", "12", "13", "14", "15",
}

// colorNames resolves the SGR palette names some engines report.
var colorNames = map[string]int{
	"black": 0, "red": 1, "green": 2, "yellow": 3,
	"blue": 4, "magenta": 5, "cyan": 6, "white": 7,
	"bright_black": 8, "bright_red": 9, "bright_green": 10, "bright_yellow": 11,
	"bright_blue": 12, "bright_magenta": 13, "bright_cyan": 14, "bright_white": 15,
}

// indexedColors is the xterm 256-color palette.
var indexedColors [256]lipgloss.Color

func init() {
	for i := range indexedColors {
		indexedColors[i] = lipgloss.Color(strconv.Itoa(i))
	}
}

// DefaultColor is what every unrecognized code maps to.
var DefaultColor lipgloss.TerminalColor = lipgloss.NoColor{}

// NamedColor maps an ANSI palette slot 0-15.
func NamedColor(n int) lipgloss.TerminalColor {
	if n < 0 || n >= len(namedColors) {
		return DefaultColor
	}
	return namedColors[n]
}

// NamedColorByName maps a palette name such as "red" or "bright_blue".
func NamedColorByName(name string) lipgloss.TerminalColor {
	n, ok := colorNames[strings.ToLower(strings.ReplaceAll(name, "-", "_"))]
	if !ok {
		return DefaultColor
	}
	return namedColors[n]
}

// IndexedColor maps an xterm 256-color index.
func IndexedColor(i int) lipgloss.TerminalColor {
	if i < 0 || i >= len(indexedColors) {
		return DefaultColor
	}
	return indexedColors[i]
}

// RGBColor maps a 24-bit color.
func RGBColor(r, g, b uint8) lipgloss.TerminalColor {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))
}

// HexColor maps "#rrggbb"; anything else is the default color.
func HexColor(s string) lipgloss.TerminalColor {
	if len(s) != 7 || s[0] != '#' {
		return DefaultColor
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return DefaultColor
	}
	return RGBColor(uint8(v>>16), uint8(v>>8), uint8(v))
}
