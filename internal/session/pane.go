package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/twistedxcom/panedeck/internal/activity"
	"github.com/twistedxcom/panedeck/internal/logging"
	"github.com/twistedxcom/panedeck/internal/pty"
	"github.com/twistedxcom/panedeck/internal/screen"
)

var paneLog = logging.ForComponent(logging.CompPTY)

const (
	// DefaultOutputBufferBytes bounds each pane's raw output history.
	DefaultOutputBufferBytes = 256 * 1024
	maxRecentActivity        = 20
)

// ErrAlreadyRunning is returned by Spawn when the pane still owns a session.
var ErrAlreadyRunning = errors.New("pane already has a running session")

// PaneOptions describes a pane before its process exists.
type PaneOptions struct {
	ID      string // generated when empty
	TaskID  string
	Title   string
	WorkDir string
	Command []string
	Env     []string
	Rows    int
	Cols    int

	Backend     string
	Scrollback  int
	OutputBytes int
	GracePeriod time.Duration
}

// Pane is one tracked terminal: a process, its screen and its agent state.
// All fields are owned by the render loop.
type Pane struct {
	ID      string
	TaskID  string
	Title   string
	WorkDir string
	Command []string
	Env     []string
	Rows    int
	Cols    int

	State    ClaudeState
	Screen   screen.Screen
	Session  *pty.Session
	SpawnErr error

	Exited   bool
	ExitCode int

	Activity    []activity.Detection
	LastHookAt  time.Time
	LastOutput  time.Time
	CreatedAt   time.Time
	grace       time.Duration
	output      *outputBuffer
	backendName string
	scrollback  int
}

// NewPane builds a pane with a fresh screen. It does not start a process.
func NewPane(opts PaneOptions) (*Pane, error) {
	rows, cols := clampGeometry(opts.Rows, opts.Cols)
	scr, err := screen.New(opts.Backend, rows, cols, opts.Scrollback)
	if err != nil {
		return nil, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	taskID := opts.TaskID
	if taskID == "" {
		taskID = id
	}
	size := opts.OutputBytes
	if size <= 0 {
		size = DefaultOutputBufferBytes
	}
	return &Pane{
		ID:          id,
		TaskID:      taskID,
		Title:       opts.Title,
		WorkDir:     opts.WorkDir,
		Command:     append([]string(nil), opts.Command...),
		Env:         append([]string(nil), opts.Env...),
		Rows:        rows,
		Cols:        cols,
		State:       StateIdle,
		Screen:      scr,
		CreatedAt:   time.Now(),
		grace:       opts.GracePeriod,
		output:      newOutputBuffer(size),
		backendName: opts.Backend,
		scrollback:  opts.Scrollback,
	}, nil
}

// Spawn starts the pane's command. Failure is kept on the pane so the UI
// can offer a retry; the pane itself stays usable.
func (p *Pane) Spawn() error {
	if p.Session != nil {
		return ErrAlreadyRunning
	}
	s, err := pty.Spawn(pty.SpawnOptions{
		Command:     p.Command,
		Dir:         p.WorkDir,
		Rows:        p.Rows,
		Cols:        p.Cols,
		Env:         p.Env,
		GracePeriod: p.grace,
	})
	if err != nil {
		p.SpawnErr = err
		paneLog.Warn("pane_spawn_failed", slog.String("pane", p.ID), slog.String("error", err.Error()))
		return err
	}
	p.Session = s
	p.SpawnErr = nil
	p.Exited = false
	p.ExitCode = 0
	return nil
}

// Poll drains pending output into the screen and the raw buffer. It returns
// the new bytes and whether the process has just been found exited.
func (p *Pane) Poll() (data []byte, exited bool) {
	if p.Session == nil || p.Exited {
		return nil, false
	}
	res := p.Session.ReadNonblocking()
	switch res.Status {
	case pty.ReadData:
		p.feed(res.Data)
		return res.Data, false
	case pty.ReadClosed:
		p.Exited = true
		p.ExitCode = p.Session.ExitCode()
		return nil, true
	default:
		return nil, false
	}
}

func (p *Pane) feed(data []byte) {
	_, _ = p.Screen.Write(data)
	p.output.Write(data)
	p.LastOutput = time.Now()
}

// Detach hands the session to the caller for termination and leaves the
// pane without one. Sessions are never reused.
func (p *Pane) Detach() *pty.Session {
	s := p.Session
	p.Session = nil
	return s
}

// Resize updates the pane geometry, its screen and its process.
func (p *Pane) Resize(rows, cols int) {
	rows, cols = clampGeometry(rows, cols)
	if rows == p.Rows && cols == p.Cols {
		return
	}
	p.Rows, p.Cols = rows, cols
	p.Screen.Resize(rows, cols)
	if p.Session != nil {
		p.Session.Resize(rows, cols)
	}
}

// SendInput forwards keystrokes to the process, if any.
func (p *Pane) SendInput(b []byte) {
	if p.Session == nil || p.Exited {
		return
	}
	_, _ = p.Session.Write(b)
}

// Output returns a copy of the retained raw output.
func (p *Pane) Output() []byte { return p.output.Bytes() }

// Running reports whether the pane has a live process.
func (p *Pane) Running() bool { return p.Session != nil && !p.Exited }

// ResetScreen replaces the screen with a blank one of the current size,
// used before a respawn.
func (p *Pane) ResetScreen() {
	if s, err := screen.New(p.backendName, p.Rows, p.Cols, p.scrollback); err == nil {
		p.Screen = s
	}
	p.output.Reset()
}

func (p *Pane) recordActivity(dets []activity.Detection) {
	p.Activity = append(p.Activity, dets...)
	if n := len(p.Activity) - maxRecentActivity; n > 0 {
		p.Activity = append(p.Activity[:0:0], p.Activity[n:]...)
	}
}

func clampGeometry(rows, cols int) (int, int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return rows, cols
}

// outputBuffer keeps the most recent bytes written to it.
type outputBuffer struct {
	buf []byte
	max int
}

func newOutputBuffer(max int) *outputBuffer {
	return &outputBuffer{max: max}
}

func (b *outputBuffer) Write(p []byte) {
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return
	}
	if over := len(b.buf) + len(p) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
}

func (b *outputBuffer) Bytes() []byte {
	return append([]byte(nil), b.buf...)
}

func (b *outputBuffer) Len() int { return len(b.buf) }

func (b *outputBuffer) Reset() { b.buf = b.buf[:0] }
