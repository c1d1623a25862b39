package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// EnvColor forces a color profile: truecolor, 256, 16 or none.
const EnvColor = "PANEDECK_COLOR"

// parseColorOverride maps a PANEDECK_COLOR value to a profile.
func parseColorOverride(v string) (termenv.Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "truecolor", "24bit", "true":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi", "basic":
		return termenv.ANSI, true
	case "none", "off", "ascii":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

// detectColorProfile picks a profile from COLORTERM and TERM. Terminals
// inside multiplexers often under-report, so anything that looks like a
// modern terminal gets at least 256 colors.
func detectColorProfile(colorterm, term string) termenv.Profile {
	switch strings.ToLower(colorterm) {
	case "truecolor", "24bit":
		return termenv.TrueColor
	}
	term = strings.ToLower(term)
	switch {
	case term == "dumb":
		return termenv.Ascii
	case strings.Contains(term, "truecolor"), strings.Contains(term, "24bit"),
		strings.HasPrefix(term, "xterm-kitty"), strings.HasPrefix(term, "alacritty"),
		strings.HasPrefix(term, "wezterm"), strings.HasPrefix(term, "ghostty"):
		return termenv.TrueColor
	}
	return termenv.ANSI256
}

func initColorProfile() {
	if p, ok := parseColorOverride(os.Getenv(EnvColor)); ok {
		lipgloss.SetColorProfile(p)
		return
	}
	lipgloss.SetColorProfile(detectColorProfile(os.Getenv("COLORTERM"), os.Getenv("TERM")))
}
