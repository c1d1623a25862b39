package session

import "fmt"

// ClaudeState is the lifecycle phase of the agent running in a pane.
type ClaudeState int

const (
	StateIdle ClaudeState = iota
	StateRunning
	StateNeedsPermissions
	StateDone
)

func (s ClaudeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateNeedsPermissions:
		return "needs_permissions"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets the status mirror emit states by name.
func (s ClaudeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LayoutMode decides how panes share the screen.
type LayoutMode int

const (
	LayoutSingle LayoutMode = iota
	LayoutHorizontalSplit
	LayoutVerticalSplit
	LayoutGrid
)

var layoutNames = [...]string{"single", "horizontal", "vertical", "grid"}

func (m LayoutMode) String() string {
	if m < 0 || int(m) >= len(layoutNames) {
		return layoutNames[0]
	}
	return layoutNames[m]
}

// Next cycles single → horizontal → vertical → grid → single.
func (m LayoutMode) Next() LayoutMode {
	return LayoutMode((int(m) + 1) % len(layoutNames))
}

// ParseLayoutMode maps a persisted name back; unknown names are single.
func ParseLayoutMode(s string) LayoutMode {
	for i, name := range layoutNames {
		if name == s {
			return LayoutMode(i)
		}
	}
	return LayoutSingle
}
