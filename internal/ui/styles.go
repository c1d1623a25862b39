package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/twistedxcom/panedeck/internal/session"
)

// Theme is the active color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type palette struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Purple, Cyan, Green        lipgloss.Color
	Yellow, Orange, Red                lipgloss.Color
}

// Tokyo Night
var darkPalette = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
}

// Tokyo Night Light
var lightPalette = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
}

var (
	currentTheme = ThemeDark
	colors       palette

	// themeMu guards the palette and styles during a live theme switch.
	themeMu sync.RWMutex
)

var (
	HeaderStyle         lipgloss.Style
	HeaderSelectedStyle lipgloss.Style
	HeaderFocusedStyle  lipgloss.Style
	StatusBarStyle      lipgloss.Style
	MenuKeyStyle        lipgloss.Style
	MenuDescStyle       lipgloss.Style
	MenuSeparatorStyle  lipgloss.Style
	DimStyle            lipgloss.Style
	ErrorStyle          lipgloss.Style
	PromptStyle         lipgloss.Style
	MatchStyle          lipgloss.Style
	EmptyStyle          lipgloss.Style

	stateStyles map[session.ClaudeState]lipgloss.Style
)

// InitTheme switches the palette. Anything but "light" is dark.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme, colors = ThemeLight, lightPalette
	} else {
		currentTheme, colors = ThemeDark, darkPalette
	}
	initStyles()
}

// GetCurrentTheme returns the active theme.
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme(string(ThemeDark))
}

func initStyles() {
	HeaderStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim).
		Background(colors.Surface)

	HeaderSelectedStyle = lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Border).
		Bold(true)

	HeaderFocusedStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Accent).
		Bold(true)

	StatusBarStyle = lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface)

	MenuKeyStyle = lipgloss.NewStyle().
		Foreground(colors.Accent).
		Bold(true)

	MenuDescStyle = lipgloss.NewStyle().
		Foreground(colors.Text)

	MenuSeparatorStyle = lipgloss.NewStyle().
		Foreground(colors.Border)

	DimStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(colors.Red).
		Bold(true)

	PromptStyle = lipgloss.NewStyle().
		Foreground(colors.Purple).
		Bold(true)

	MatchStyle = lipgloss.NewStyle().
		Foreground(colors.Bg).
		Background(colors.Yellow).
		Bold(true)

	EmptyStyle = lipgloss.NewStyle().
		Foreground(colors.TextDim).
		Align(lipgloss.Center, lipgloss.Center)

	stateStyles = map[session.ClaudeState]lipgloss.Style{
		session.StateIdle:             lipgloss.NewStyle().Foreground(colors.TextDim),
		session.StateRunning:          lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		session.StateNeedsPermissions: lipgloss.NewStyle().Foreground(colors.Orange).Bold(true),
		session.StateDone:             lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),
	}
}

// MenuKey formats one "key • description" hint.
func MenuKey(key, description string) string {
	return MenuKeyStyle.Render(key) + " " +
		MenuSeparatorStyle.Render("•") + " " +
		MenuDescStyle.Render(description)
}

// StateIndicator returns the glyph and label for a pane state.
// ● running, ◐ needs permissions, ✓ done, ○ idle.
func StateIndicator(s session.ClaudeState) string {
	themeMu.RLock()
	defer themeMu.RUnlock()
	st, ok := stateStyles[s]
	if !ok {
		st = stateStyles[session.StateIdle]
	}
	var glyph, label string
	switch s {
	case session.StateRunning:
		glyph, label = "●", "running"
	case session.StateNeedsPermissions:
		glyph, label = "◐", "needs permission"
	case session.StateDone:
		glyph, label = "✓", "done"
	default:
		glyph, label = "○", "idle"
	}
	return st.Render(glyph + " " + label)
}
