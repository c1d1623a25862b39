// Package hook carries agent lifecycle notifications from hook scripts
// running inside a pane to the dashboard, over a local Unix socket.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event kinds understood by the state engine. Others pass through as-is.
const (
	KindStart      = "start"
	KindEnd        = "end"
	KindPermission = "permission"
)

// ErrMalformed marks a line that is not a usable event.
var ErrMalformed = errors.New("malformed hook event")

var jsonNull = json.RawMessage("null")

// Event is one line on the hook socket.
type Event struct {
	Kind       string          `json:"event"`
	WorktreeID string          `json:"worktree_id"`
	Timestamp  int64           `json:"timestamp"`
	HookData   json.RawMessage `json:"hook_data,omitempty"`
}

// NewEvent stamps an event with the current time in milliseconds.
func NewEvent(kind, worktreeID string, data json.RawMessage) Event {
	return Event{
		Kind:       kind,
		WorktreeID: worktreeID,
		Timestamp:  time.Now().UnixMilli(),
		HookData:   data,
	}
}

// ParseLine decodes one socket line. Missing hook_data becomes JSON null.
func ParseLine(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	if ev.WorktreeID == "" {
		return Event{}, fmt.Errorf("%w: missing worktree_id", ErrMalformed)
	}
	if len(ev.HookData) == 0 {
		ev.HookData = jsonNull
	}
	return ev, nil
}

// MarshalLine encodes the event as a single newline-terminated line.
// encoding/json compacts HookData, so embedded newlines never split it.
func (e Event) MarshalLine() ([]byte, error) {
	if len(e.HookData) > 0 && !json.Valid(e.HookData) {
		return nil, fmt.Errorf("hook_data is not valid JSON")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Time converts the millisecond timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
