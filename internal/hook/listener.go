package hook

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/twistedxcom/panedeck/internal/logging"
)

var hookLog = logging.ForComponent(logging.CompHook)

const (
	DefaultMaxLineBytes  = 64 * 1024
	DefaultAcceptIdle    = 25 * time.Millisecond
	DefaultAcceptBackoff = time.Second

	aliveProbeTimeout = 500 * time.Millisecond
)

// ErrSocketInUse means another live process is serving the socket path.
var ErrSocketInUse = errors.New("hook socket already in use")

// DefaultSocketPath is the per-user socket in the OS temp directory.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("panedeck-%d.sock", os.Getuid()))
}

// ListenerConfig controls where and how the listener binds.
type ListenerConfig struct {
	SocketPath   string
	MaxLineBytes int
	// AcceptIdle bounds each accept wait before the loop checks for shutdown.
	AcceptIdle time.Duration
	// AcceptBackoff is the pause after an accept error other than a timeout.
	AcceptBackoff time.Duration
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath()
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.AcceptIdle <= 0 {
		c.AcceptIdle = DefaultAcceptIdle
	}
	if c.AcceptBackoff <= 0 {
		c.AcceptBackoff = DefaultAcceptBackoff
	}
	return c
}

// Stats are running counters, safe to read from any goroutine.
type Stats struct {
	Accepted  int64
	Delivered int64
	Malformed int64
	TooLong   int64
}

// Listener accepts hook connections and decodes their lines into Events.
type Listener struct {
	cfg   ListenerConfig
	ln    *net.UnixListener
	queue *queue
	quit  chan struct{}
	wg    sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	warn *rate.Limiter

	accepted  atomic.Int64
	delivered atomic.Int64
	malformed atomic.Int64
	tooLong   atomic.Int64

	closeOnce sync.Once
}

// Listen binds the socket and starts accepting. A leftover socket file from
// a crashed run is removed; one that still answers yields ErrSocketInUse.
func Listen(cfg ListenerConfig) (*Listener, error) {
	cfg = cfg.withDefaults()
	if err := prepareSocketPath(cfg.SocketPath); err != nil {
		return nil, err
	}

	addr := &net.UnixAddr{Name: cfg.SocketPath, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on hook socket %s: %w", cfg.SocketPath, err)
	}
	if err := os.Chmod(cfg.SocketPath, 0o600); err != nil {
		hookLog.Warn("hook_socket_chmod_failed", slog.String("path", cfg.SocketPath), slog.String("error", err.Error()))
	}

	quit := make(chan struct{})
	l := &Listener{
		cfg:   cfg,
		ln:    ln,
		queue: newQueue(quit),
		quit:  quit,
		conns: make(map[net.Conn]struct{}),
		warn:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
	l.wg.Add(1)
	go l.acceptLoop()

	hookLog.Info("hook_listener_started", slog.String("path", cfg.SocketPath))
	return l, nil
}

func prepareSocketPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create hook socket dir: %w", err)
	}
	if _, err := os.Lstat(path); err != nil {
		return nil
	}
	if isSocketAlive(path) {
		return fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale hook socket %s: %w", path, err)
	}
	hookLog.Info("hook_stale_socket_removed", slog.String("path", path))
	return nil
}

func isSocketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, aliveProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Path is the bound socket path.
func (l *Listener) Path() string { return l.cfg.SocketPath }

// Events delivers decoded events in arrival order per connection. It is
// closed after Close.
func (l *Listener) Events() <-chan Event { return l.queue.out }

func (l *Listener) Stats() Stats {
	return Stats{
		Accepted:  l.accepted.Load(),
		Delivered: l.delivered.Load(),
		Malformed: l.malformed.Load(),
		TooLong:   l.tooLong.Load(),
	}
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		_ = l.ln.SetDeadline(time.Now().Add(l.cfg.AcceptIdle))
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			hookLog.Warn("hook_accept_error", slog.String("error", err.Error()))
			select {
			case <-time.After(l.cfg.AcceptBackoff):
			case <-l.quit:
				return
			}
			continue
		}

		if !l.track(conn) {
			_ = conn.Close()
			return
		}
		l.accepted.Add(1)
		logging.Aggregate(logging.CompHook, "hook_conn_accepted", slog.String("path", l.cfg.SocketPath))

		l.wg.Add(1)
		go l.serve(conn)
	}
}

func (l *Listener) serve(conn net.Conn) {
	defer l.wg.Done()
	defer l.untrack(conn)

	sc := bufio.NewScanner(conn)
	// Scanner caps lines at max(cap(buf), max); keep the buffer within the limit.
	sc.Buffer(make([]byte, 0, min(4096, l.cfg.MaxLineBytes)), l.cfg.MaxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := ParseLine(line)
		if err != nil {
			l.malformed.Add(1)
			l.warnf("hook_line_dropped", slog.Int("bytes", len(line)), slog.String("error", err.Error()))
			continue
		}
		if !l.queue.push(ev) {
			return
		}
		l.delivered.Add(1)
	}

	err := sc.Err()
	switch {
	case err == nil, l.closed():
	case errors.Is(err, bufio.ErrTooLong):
		l.tooLong.Add(1)
		l.warnf("hook_line_too_long", slog.Int("max_bytes", l.cfg.MaxLineBytes))
	default:
		hookLog.Debug("hook_conn_read_error", slog.String("error", err.Error()))
	}
}

func (l *Listener) warnf(msg string, attrs ...slog.Attr) {
	if l.warn.Allow() {
		hookLog.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
		return
	}
	logging.Aggregate(logging.CompHook, msg, attrs...)
}

func (l *Listener) track(conn net.Conn) bool {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	if l.closed() {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.connsMu.Lock()
	delete(l.conns, conn)
	l.connsMu.Unlock()
	_ = conn.Close()
}

func (l *Listener) closed() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// Close stops accepting, drops open connections and removes the socket
// file. Cleanup is best effort; Close never blocks on a client.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.connsMu.Lock()
		close(l.quit)
		for conn := range l.conns {
			_ = conn.Close()
		}
		l.connsMu.Unlock()

		if cerr := l.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("close hook listener: %w", cerr)
		}
		l.wg.Wait()

		if rerr := os.Remove(l.cfg.SocketPath); rerr != nil && !os.IsNotExist(rerr) {
			hookLog.Warn("hook_socket_remove_failed", slog.String("path", l.cfg.SocketPath), slog.String("error", rerr.Error()))
		}
		hookLog.Info("hook_listener_stopped", slog.String("path", l.cfg.SocketPath), slog.Int64("delivered", l.delivered.Load()))
	})
	return err
}
