package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"

	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/session"
	"github.com/twistedxcom/panedeck/internal/statedb"
)

// shortSocket keeps the path under the unix socket length limit.
func shortSocket(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pdc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "h.sock")
}

func listen(t *testing.T) *hook.Listener {
	t.Helper()
	l, err := hook.Listen(hook.ListenerConfig{SocketPath: shortSocket(t)})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func nextEvent(t *testing.T, l *hook.Listener) hook.Event {
	t.Helper()
	select {
	case ev := <-l.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
		return hook.Event{}
	}
}

func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(func() { session.SetPanedeckDir("") })
	return dir
}

func TestParseGlobalFlags(t *testing.T) {
	g, rest, err := parseGlobalFlags([]string{"--socket", "/tmp/x.sock", "--debug", "--web", "notify", "--event", "start"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.socket != "/tmp/x.sock" || !g.debug || !g.web {
		t.Errorf("flags = %+v", g)
	}
	// Subcommand flags are left alone.
	want := []string{"notify", "--event", "start"}
	if strings.Join(rest, " ") != strings.Join(want, " ") {
		t.Errorf("rest = %v, want %v", rest, want)
	}

	g, rest, err = parseGlobalFlags([]string{"--backend=vt10x"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.backend != "vt10x" || len(rest) != 0 {
		t.Errorf("backend = %q rest = %v", g.backend, rest)
	}

	if _, _, err := parseGlobalFlags([]string{"--bogus"}); err == nil {
		t.Error("unknown flag should fail")
	}
}

func TestRunVersionAndUnknown(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version"}, nil, &out, &errOut); code != 0 {
		t.Fatalf("version exit = %d", code)
	}
	if !strings.Contains(out.String(), Version) {
		t.Errorf("version output = %q", out.String())
	}

	out.Reset()
	if code := run([]string{"frobnicate"}, nil, &out, &errOut); code != 2 {
		t.Errorf("unknown command exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "frobnicate") {
		t.Errorf("stderr = %q", errOut.String())
	}

	out.Reset()
	if code := run([]string{"--help"}, nil, &out, &errOut); code != 0 {
		t.Errorf("--help exit = %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv(EnvSocket, "/tmp/env.sock")
	if got := socketPath(globalFlags{socket: "/tmp/flag.sock"}); got != "/tmp/flag.sock" {
		t.Errorf("flag: got %q", got)
	}
	if got := socketPath(globalFlags{}); got != "/tmp/env.sock" {
		t.Errorf("env: got %q", got)
	}
}

func TestNotifySendsEvent(t *testing.T) {
	l := listen(t)
	var errOut bytes.Buffer
	code := run([]string{"--socket", l.Path(), "notify", "--event", "start", "--task", "wt-1"},
		strings.NewReader(`{"session_id":"abc"}`), nil, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d stderr=%s", code, errOut.String())
	}
	ev := nextEvent(t, l)
	if ev.Kind != hook.KindStart || ev.WorktreeID != "wt-1" {
		t.Errorf("event = %+v", ev)
	}
	var data map[string]string
	if err := json.Unmarshal(ev.HookData, &data); err != nil || data["session_id"] != "abc" {
		t.Errorf("hook data = %s (%v)", ev.HookData, err)
	}
}

func TestNotifyDataFlagWrapsPlainText(t *testing.T) {
	l := listen(t)
	run([]string{"--socket", l.Path(), "notify", "--event", "permission", "--task", "wt-2", "--data", "approve rm?"},
		nil, nil, &bytes.Buffer{})
	ev := nextEvent(t, l)
	if ev.Kind != hook.KindPermission {
		t.Errorf("kind = %q", ev.Kind)
	}
	if string(ev.HookData) != `"approve rm?"` {
		t.Errorf("hook data = %s", ev.HookData)
	}
}

func TestNotifyAlwaysExitsZero(t *testing.T) {
	var errOut bytes.Buffer
	missing := filepath.Join(t.TempDir(), "none.sock")
	if code := run([]string{"--socket", missing, "notify", "--event", "end", "--task", "wt"}, nil, nil, &errOut); code != 0 {
		t.Errorf("no listener: exit = %d", code)
	}
	if code := run([]string{"--socket", missing, "notify"}, nil, nil, &errOut); code != 0 {
		t.Errorf("missing flags: exit = %d", code)
	}
}

func TestCodexNotify(t *testing.T) {
	l := listen(t)
	code := run([]string{"--socket", l.Path(), "codex-notify", "--task", "wt-3", `{"type":"agent-turn-complete","turn-id":"7"}`},
		nil, nil, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	ev := nextEvent(t, l)
	if ev.Kind != hook.KindEnd || ev.WorktreeID != "wt-3" {
		t.Errorf("event = %+v", ev)
	}

	// Notifications without lifecycle meaning are not forwarded.
	run([]string{"--socket", l.Path(), "codex-notify", "--task", "wt-3", `{"type":"something-else"}`},
		nil, nil, &bytes.Buffer{})
	select {
	case ev := <-l.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"json object", ` {"a":1} `, `{"a":1}`},
		{"plain text", "hello", `"hello"`},
		{"too large", strings.Repeat("x", maxPayloadBytes+1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(normalizePayload([]byte(tt.in))); got != tt.want {
				t.Errorf("normalizePayload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventsCommand(t *testing.T) {
	dir := useDataDir(t)

	var out bytes.Buffer
	if code := run([]string{"--config-dir", dir, "events"}, nil, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("empty journal exit = %d", code)
	}
	if !strings.Contains(out.String(), "no hook events") {
		t.Errorf("empty output = %q", out.String())
	}

	db, err := statedb.Open(filepath.Join(dir, session.JournalFileName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	now := time.Now()
	err = db.InsertHookEvents([]statedb.HookEventRow{
		{Kind: "start", WorktreeID: "wt-a", SentAt: now.Add(-5 * time.Millisecond), ReceivedAt: now, Outcome: "applied", PaneID: "p1"},
		{Kind: "end", WorktreeID: "wt-ghost", SentAt: now, ReceivedAt: now, Outcome: "unmatched"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	out.Reset()
	if code := run([]string{"--config-dir", dir, "events", "--limit", "5"}, nil, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("events exit = %d", code)
	}
	for _, want := range []string{"OUTCOME", "wt-a", "applied", "p1", "wt-ghost", "unmatched"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	run([]string{"--config-dir", dir, "events", "--unmatched"}, nil, &out, &bytes.Buffer{})
	if !strings.Contains(out.String(), "1 unmatched") {
		t.Errorf("unmatched output = %q", out.String())
	}
}

func TestProvidersCommands(t *testing.T) {
	dir := useDataDir(t)

	var out bytes.Buffer
	if code := run([]string{"--config-dir", dir, "providers", "list"}, nil, &out, &bytes.Buffer{}); code != 0 {
		t.Fatalf("list exit = %d", code)
	}
	if !strings.Contains(out.String(), "* claude") || !strings.Contains(out.String(), "codex") {
		t.Errorf("list output = %q", out.String())
	}

	work := t.TempDir()
	out.Reset()
	code := run([]string{"--config-dir", dir, "providers", "files", "--provider", "codex", "--task", "wt-9", "--dir", work}, nil, &out, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("files exit = %d", code)
	}
	if !strings.Contains(out.String(), "wt-9") || !strings.Contains(out.String(), "codex-notify") {
		t.Errorf("files output = %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(work, ".codex")); !os.IsNotExist(err) {
		t.Error("printing must not write files")
	}

	out.Reset()
	code = run([]string{"--config-dir", dir, "providers", "files", "-p", "codex", "-t", "wt-9", "-d", work, "--write"}, nil, &out, &bytes.Buffer{})
	if code != 0 {
		t.Fatalf("files --write exit = %d", code)
	}
	if _, err := os.Stat(filepath.Join(work, ".codex", "config.toml")); err != nil {
		t.Errorf("config not written: %v", err)
	}

	if code := run([]string{"providers", "files", "--provider", "nope", "--task", "x"}, nil, &out, &bytes.Buffer{}); code != 1 {
		t.Errorf("unknown provider exit = %d, want 1", code)
	}
}

func TestColorProfiles(t *testing.T) {
	tests := []struct {
		in   string
		want termenv.Profile
		ok   bool
	}{
		{"truecolor", termenv.TrueColor, true},
		{"256", termenv.ANSI256, true},
		{"16", termenv.ANSI, true},
		{"NONE", termenv.Ascii, true},
		{"", termenv.Ascii, false},
		{"rainbow", termenv.Ascii, false},
	}
	for _, tt := range tests {
		got, ok := parseColorOverride(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("parseColorOverride(%q) = %v, %v", tt.in, got, ok)
		}
	}

	if got := detectColorProfile("truecolor", "screen"); got != termenv.TrueColor {
		t.Errorf("COLORTERM truecolor = %v", got)
	}
	if got := detectColorProfile("", "xterm-kitty"); got != termenv.TrueColor {
		t.Errorf("kitty = %v", got)
	}
	if got := detectColorProfile("", "dumb"); got != termenv.Ascii {
		t.Errorf("dumb = %v", got)
	}
	if got := detectColorProfile("", "xterm"); got != termenv.ANSI256 {
		t.Errorf("xterm = %v", got)
	}
}

func TestDumpFileName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
	if got := dumpFileName(ts); got != "crash-20260304T050607890.log" {
		t.Errorf("dumpFileName = %q", got)
	}
}
