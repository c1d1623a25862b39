package web

import (
	"time"

	"github.com/twistedxcom/panedeck/internal/session"
)

// PaneStatus is the read-only view of one pane.
type PaneStatus struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Title      string    `json:"title"`
	WorkDir    string    `json:"workDir"`
	State      string    `json:"state"`
	Running    bool      `json:"running"`
	Exited     bool      `json:"exited"`
	ExitCode   int       `json:"exitCode,omitempty"`
	SpawnError string    `json:"spawnError,omitempty"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	LastHookAt time.Time `json:"lastHookAt,omitempty"`
	LastOutput time.Time `json:"lastOutputAt,omitempty"`
	Activity   []string  `json:"activity,omitempty"`
}

// Snapshot is everything the mirror serves at one moment.
type Snapshot struct {
	Time     time.Time    `json:"time"`
	Layout   string       `json:"layout"`
	Selected int          `json:"selected"`
	Panes    []PaneStatus `json:"panes"`
}

// FromCollection copies what the mirror needs out of the collection. It
// must run on the goroutine that owns c.
func FromCollection(c *session.Collection) Snapshot {
	snap := Snapshot{
		Time:     time.Now().UTC(),
		Layout:   c.Layout().String(),
		Selected: c.SelectedIndex(),
		Panes:    make([]PaneStatus, 0, c.Len()),
	}
	for _, p := range c.Panes() {
		ps := PaneStatus{
			ID:         p.ID,
			TaskID:     p.TaskID,
			Title:      p.Title,
			WorkDir:    p.WorkDir,
			State:      p.State.String(),
			Running:    p.Running(),
			Exited:     p.Exited,
			Rows:       p.Rows,
			Cols:       p.Cols,
			LastHookAt: p.LastHookAt,
			LastOutput: p.LastOutput,
		}
		if p.Exited {
			ps.ExitCode = p.ExitCode
		}
		if p.SpawnErr != nil {
			ps.SpawnError = p.SpawnErr.Error()
		}
		for _, d := range p.Activity {
			ps.Activity = append(ps.Activity, d.Kind.String()+": "+d.Text)
		}
		snap.Panes = append(snap.Panes, ps)
	}
	return snap
}
