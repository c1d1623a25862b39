package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPath returns a short path; t.TempDir can exceed the sun_path limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pdh")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "h.sock")
}

func startListener(t *testing.T, cfg ListenerConfig) *Listener {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = socketPath(t)
	}
	l, err := Listen(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func recv(t *testing.T, l *Listener) Event {
	t.Helper()
	select {
	case ev := <-l.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hook event")
		return Event{}
	}
}

func dialRaw(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSendDeliversEvent(t *testing.T) {
	l := startListener(t, ListenerConfig{})

	ev := NewEvent(KindPermission, "3f0c", json.RawMessage(`{"tool":"Bash"}`))
	require.NoError(t, Send(l.Path(), ev))

	got := recv(t, l)
	assert.Equal(t, KindPermission, got.Kind)
	assert.Equal(t, "3f0c", got.WorktreeID)
	assert.Equal(t, ev.Timestamp, got.Timestamp)
	assert.JSONEq(t, `{"tool":"Bash"}`, string(got.HookData))
}

func TestMissingHookDataIsNull(t *testing.T) {
	l := startListener(t, ListenerConfig{})
	conn := dialRaw(t, l.Path())

	_, err := conn.Write([]byte(`{"event":"start","worktree_id":"a","timestamp":0}` + "\n"))
	require.NoError(t, err)

	got := recv(t, l)
	assert.Equal(t, "null", string(got.HookData))
	assert.Equal(t, int64(0), got.Timestamp)
}

func TestMalformedLinesKeepConnection(t *testing.T) {
	l := startListener(t, ListenerConfig{})
	conn := dialRaw(t, l.Path())

	lines := []string{
		"not json",
		`{"event":"start"}`,
		`{"worktree_id":"a"}`,
		`["start","a"]`,
		"",
		`{"event":"end","worktree_id":"a","timestamp":5}`,
	}
	_, err := conn.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)

	got := recv(t, l)
	assert.Equal(t, KindEnd, got.Kind)
	require.Eventually(t, func() bool { return l.Stats().Malformed == 4 }, time.Second, 5*time.Millisecond)
}

func TestOrderPreservedPerConnection(t *testing.T) {
	l := startListener(t, ListenerConfig{})
	conn := dialRaw(t, l.Path())

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, `{"event":"start","worktree_id":"w","timestamp":%d}`+"\n", i)
	}
	_, err := conn.Write([]byte(sb.String()))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		assert.Equal(t, int64(i), recv(t, l).Timestamp)
	}
}

func TestProducersNeverWaitForConsumer(t *testing.T) {
	l := startListener(t, ListenerConfig{})

	const senders = 25
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- Send(l.Path(), NewEvent(KindStart, fmt.Sprintf("w%d", i), nil))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Nothing has been consumed yet; all events must already be queued.
	require.Eventually(t, func() bool { return l.Stats().Delivered == senders }, 3*time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < senders; i++ {
		seen[recv(t, l).WorktreeID] = true
	}
	assert.Len(t, seen, senders)
}

func TestLineTooLongDropsOnlyThatConnection(t *testing.T) {
	l := startListener(t, ListenerConfig{MaxLineBytes: 128})
	conn := dialRaw(t, l.Path())

	_, err := conn.Write([]byte(strings.Repeat("x", 1024) + "\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.Stats().TooLong == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, Send(l.Path(), NewEvent(KindEnd, "w", nil)))
	assert.Equal(t, KindEnd, recv(t, l).Kind)
}

func TestSmallLineCapIsEnforced(t *testing.T) {
	l := startListener(t, ListenerConfig{MaxLineBytes: 128})
	data, err := json.Marshal(strings.Repeat("x", 2000))
	require.NoError(t, err)

	require.NoError(t, Send(l.Path(), NewEvent(KindStart, "big", data)))
	require.Eventually(t, func() bool { return l.Stats().TooLong == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, l.Stats().Delivered)

	require.NoError(t, Send(l.Path(), NewEvent(KindEnd, "small", nil)))
	assert.Equal(t, "small", recv(t, l).WorktreeID)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file should remain")

	l := startListener(t, ListenerConfig{SocketPath: path})
	require.NoError(t, Send(l.Path(), NewEvent(KindStart, "w", nil)))
	assert.Equal(t, KindStart, recv(t, l).Kind)
}

func TestListenSocketInUse(t *testing.T) {
	l := startListener(t, ListenerConfig{})

	_, err := Listen(ListenerConfig{SocketPath: l.Path()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSocketInUse))
	assert.Contains(t, err.Error(), l.Path())

	// The original listener is unaffected.
	require.NoError(t, Send(l.Path(), NewEvent(KindStart, "w", nil)))
	assert.Equal(t, KindStart, recv(t, l).Kind)
}

func TestCloseRemovesSocketAndEndsEvents(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(ListenerConfig{SocketPath: path})
	require.NoError(t, err)

	// An idle client must not hold up Close.
	dialRaw(t, path)

	done := make(chan error, 1)
	go func() { done <- l.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an idle connection")
	}

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	select {
	case _, ok := <-l.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Events not closed after Close")
	}

	require.NoError(t, l.Close())
}

func TestSendWithoutListener(t *testing.T) {
	err := Send(socketPath(t), NewEvent(KindStart, "w", nil))
	require.Error(t, err)
}

func TestSendRejectsInvalidHookData(t *testing.T) {
	l := startListener(t, ListenerConfig{})
	err := Send(l.Path(), NewEvent(KindStart, "w", json.RawMessage(`{broken`)))
	require.Error(t, err)
}
