//go:build !windows
// +build !windows

// Package pty owns one child process per pane and the pseudo-terminal it
// runs on. Reading, writing and resizing never block the caller; all
// blocking I/O happens on goroutines private to the Session.
package pty

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/twistedxcom/panedeck/internal/logging"
)

var ptyLog = logging.ForComponent(logging.CompPTY)

const (
	// DefaultGracePeriod is how long Terminate waits after SIGTERM.
	DefaultGracePeriod = 3 * time.Second

	readBufSize    = 32 * 1024
	outputQueueLen = 256
	inputQueueLen  = 64
	maxReadChunk   = 256 * 1024
	killWait       = 2 * time.Second
)

// ErrEmptyCommand is returned by Spawn when no command is given.
var ErrEmptyCommand = errors.New("empty command")

// SpawnError describes why a child could not be started.
type SpawnError struct {
	Op   string // "command", "chdir", "lookpath" or "start"
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("spawn %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("spawn %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// SpawnOptions configures a new Session.
type SpawnOptions struct {
	Command     []string
	Dir         string
	Rows, Cols  int
	Env         []string
	GracePeriod time.Duration
}

// ReadStatus tells a poller what ReadNonblocking found.
type ReadStatus int

const (
	// ReadEmpty means no output yet; the child is still alive.
	ReadEmpty ReadStatus = iota
	ReadData
	// ReadClosed means the child exited and all its output was delivered.
	ReadClosed
)

func (s ReadStatus) String() string {
	switch s {
	case ReadData:
		return "data"
	case ReadClosed:
		return "closed"
	default:
		return "empty"
	}
}

// ReadResult is the outcome of one ReadNonblocking call.
type ReadResult struct {
	Status ReadStatus
	Data   []byte
}

// Session is one child process attached to a pty.
type Session struct {
	ptmx  *os.File
	cmd   *exec.Cmd
	pid   int
	grace time.Duration

	output chan []byte // closed by readLoop
	input  chan []byte
	resize chan struct{}

	// geometry holds the latest requested size as rows<<32 | cols.
	geometry atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	exitCode int

	terminateOnce sync.Once
	terminateErr  error
}

// Spawn starts opts.Command in opts.Dir on a new pty of the given size.
func Spawn(opts SpawnOptions) (*Session, error) {
	if len(opts.Command) == 0 {
		return nil, &SpawnError{Op: "command", Err: ErrEmptyCommand}
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, &SpawnError{Op: "chdir", Path: opts.Dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &SpawnError{Op: "chdir", Path: opts.Dir, Err: syscall.ENOTDIR}
	}
	path, err := exec.LookPath(opts.Command[0])
	if err != nil {
		return nil, &SpawnError{Op: "lookpath", Path: opts.Command[0], Err: err}
	}

	rows, cols := clampGeometry(opts.Rows, opts.Cols)
	cmd := exec.Command(path, opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, &SpawnError{Op: "start", Path: path, Err: err}
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	s := &Session{
		ptmx:   ptmx,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		grace:  grace,
		output: make(chan []byte, outputQueueLen),
		input:  make(chan []byte, inputQueueLen),
		resize: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	initial := packGeometry(rows, cols)
	s.geometry.Store(initial)

	go s.readLoop()
	go s.writeLoop()
	go s.resizeLoop(initial)
	go s.waitLoop()

	ptyLog.Info("pty_spawned",
		slog.Int("pid", s.pid),
		slog.String("cmd", path),
		slog.String("dir", opts.Dir),
		slog.Int("rows", rows),
		slog.Int("cols", cols))
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.output)
	buf := make([]byte, readBufSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.output <- chunk:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			// EIO once every slave descriptor is gone; EOF or ErrClosed after Terminate.
			return
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case p := <-s.input:
			if _, err := s.ptmx.Write(p); err != nil {
				ptyLog.Debug("pty_write_failed", slog.Int("pid", s.pid), slog.String("error", err.Error()))
			}
		case <-s.stop:
			return
		}
	}
}

// resizeLoop starts from the geometry the pty was created with; a Resize
// that lands before the loop is scheduled must still be applied.
func (s *Session) resizeLoop(applied uint64) {
	for {
		select {
		case <-s.resize:
			g := s.geometry.Load()
			if g == applied {
				continue
			}
			rows, cols := unpackGeometry(g)
			if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
				ptyLog.Debug("pty_resize_failed", slog.Int("pid", s.pid), slog.String("error", err.Error()))
				continue
			}
			applied = g
		case <-s.stop:
			return
		}
	}
}

func (s *Session) waitLoop() {
	err := s.cmd.Wait()
	code := s.cmd.ProcessState.ExitCode()
	s.exitCode = code
	close(s.done)

	attrs := []any{slog.Int("pid", s.pid), slog.Int("exit_code", code)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	ptyLog.Info("pty_exited", attrs...)
}

// ReadNonblocking returns output buffered so far without blocking.
// ReadClosed is reported only once the child has exited and every chunk
// read before that has been returned.
func (s *Session) ReadNonblocking() ReadResult {
	var out []byte
	for len(out) < maxReadChunk {
		select {
		case chunk, ok := <-s.output:
			if !ok {
				if len(out) > 0 {
					return ReadResult{Status: ReadData, Data: out}
				}
				select {
				case <-s.done:
					return ReadResult{Status: ReadClosed}
				default:
					return ReadResult{Status: ReadEmpty}
				}
			}
			out = append(out, chunk...)
		default:
			if len(out) > 0 {
				return ReadResult{Status: ReadData, Data: out}
			}
			return ReadResult{Status: ReadEmpty}
		}
	}
	return ReadResult{Status: ReadData, Data: out}
}

// Write queues p for the child. It never blocks; input is dropped when the
// child is exiting or the queue is full.
func (s *Session) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case <-s.stop:
		return len(p), nil
	case <-s.done:
		return len(p), nil
	default:
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case s.input <- buf:
	default:
		logging.Aggregate(logging.CompPTY, "pty_input_dropped", slog.Int("pid", s.pid))
	}
	return len(p), nil
}

// Resize records the new geometry and hands it to the resize goroutine.
// Calls arriving faster than the goroutine applies them collapse into the
// latest value.
func (s *Session) Resize(rows, cols int) {
	rows, cols = clampGeometry(rows, cols)
	g := packGeometry(rows, cols)
	if s.geometry.Swap(g) == g {
		return
	}
	select {
	case s.resize <- struct{}{}:
	default:
	}
}

// Size returns the latest requested geometry.
func (s *Session) Size() (rows, cols int) {
	return unpackGeometry(s.geometry.Load())
}

// Terminate stops the child: SIGTERM to its process group, then SIGKILL once
// the grace period runs out. The pty master is closed on every path. Safe
// to call more than once; later calls return the first result.
func (s *Session) Terminate() error {
	s.terminateOnce.Do(func() {
		s.terminateErr = s.terminate()
	})
	return s.terminateErr
}

func (s *Session) terminate() (err error) {
	close(s.stop)
	defer func() {
		if cerr := s.ptmx.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close pty: %w", cerr)
		}
	}()

	select {
	case <-s.done:
		return nil
	default:
	}

	if err := signalGroup(s.pid, syscall.SIGTERM); err != nil {
		ptyLog.Debug("pty_sigterm_failed", slog.Int("pid", s.pid), slog.String("error", err.Error()))
	}
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.done:
		ptyLog.Info("pty_terminated", slog.Int("pid", s.pid))
		return nil
	case <-timer.C:
	}

	ptyLog.Warn("pty_force_kill", slog.Int("pid", s.pid), slog.Duration("grace", s.grace))
	if err := signalGroup(s.pid, syscall.SIGKILL); err != nil {
		ptyLog.Debug("pty_sigkill_failed", slog.Int("pid", s.pid), slog.String("error", err.Error()))
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d still running after SIGKILL", s.pid)
	}
}

// signalGroup signals the child's process group, falling back to the child
// alone if the group is already gone.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); !errors.Is(err, syscall.ESRCH) {
		return err
	}
	if err := syscall.Kill(pid, sig); !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Done is closed once the child has been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Exited reports whether the child has been reaped.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ExitCode is valid after Done is closed; -1 means killed by a signal.
func (s *Session) ExitCode() int {
	select {
	case <-s.done:
		return s.exitCode
	default:
		return -1
	}
}

func (s *Session) Pid() int { return s.pid }

func clampGeometry(rows, cols int) (int, int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if rows > 0xffff {
		rows = 0xffff
	}
	if cols > 0xffff {
		cols = 0xffff
	}
	return rows, cols
}

func packGeometry(rows, cols int) uint64 {
	return uint64(rows)<<32 | uint64(cols)
}

func unpackGeometry(g uint64) (int, int) {
	return int(g >> 32), int(g & 0xffffffff)
}
