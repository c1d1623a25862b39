package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/provider"
)

const (
	// maxPayloadBytes keeps an event line under the listener's line cap.
	// Larger payloads are replaced by null so the event still arrives.
	maxPayloadBytes = 60 * 1024
	stdinWait       = 2 * time.Second
)

// runNotify sends one event for the agent hooks. It always exits 0 so a
// missing dashboard never blocks the agent.
func runNotify(g globalFlags, args []string, stdin io.Reader, stderr io.Writer) int {
	fs := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	event := fs.String("event", "", "event kind: start, end or permission")
	task := fs.String("task", "", "worktree task id")
	data := fs.String("data", "", "JSON payload (default: read from stdin)")
	verbose := fs.BoolP("verbose", "v", false, "report delivery errors on stderr")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "panedeck notify: %v\n", err)
		return 0
	}
	if *event == "" || *task == "" {
		fmt.Fprintln(stderr, "panedeck notify: --event and --task are required")
		return 0
	}

	var payload []byte
	if *data != "" {
		payload = []byte(*data)
	} else {
		payload = readStdinPayload(stdin)
	}

	ev := hook.NewEvent(*event, *task, normalizePayload(payload))
	if err := hook.Send(socketPath(g), ev); err != nil && *verbose {
		fmt.Fprintf(stderr, "panedeck notify: %v\n", err)
	}
	return 0
}

// runCodexNotify is the program Codex runs on notifications. Codex passes
// the JSON payload as the last argument.
func runCodexNotify(g globalFlags, args []string, stdin io.Reader, stderr io.Writer) int {
	fs := pflag.NewFlagSet("codex-notify", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	task := fs.String("task", "", "worktree task id")
	verbose := fs.BoolP("verbose", "v", false, "report delivery errors on stderr")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "panedeck codex-notify: %v\n", err)
		return 0
	}
	if *task == "" {
		return 0
	}

	var payload []byte
	if rest := fs.Args(); len(rest) > 0 {
		payload = []byte(strings.TrimSpace(rest[len(rest)-1]))
	} else {
		payload = readStdinPayload(stdin)
	}
	if len(payload) == 0 {
		return 0
	}

	kind, ok, err := provider.MapCodexNotify(payload)
	if err != nil || !ok {
		if err != nil && *verbose {
			fmt.Fprintf(stderr, "panedeck codex-notify: %v\n", err)
		}
		return 0
	}
	ev := hook.NewEvent(kind, *task, normalizePayload(payload))
	if err := hook.Send(socketPath(g), ev); err != nil && *verbose {
		fmt.Fprintf(stderr, "panedeck codex-notify: %v\n", err)
	}
	return 0
}

// readStdinPayload reads what the agent piped in. A terminal is never read
// and a writer that never closes is abandoned after stdinWait.
func readStdinPayload(stdin io.Reader) []byte {
	if stdin == nil {
		return nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil
	}
	ch := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(io.LimitReader(stdin, maxPayloadBytes+1))
		ch <- b
	}()
	select {
	case b := <-ch:
		return b
	case <-time.After(stdinWait):
		return nil
	}
}

// normalizePayload returns valid JSON for the event's hook_data: null when
// empty or too large, a JSON string when the input is not JSON.
func normalizePayload(b []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || len(trimmed) > maxPayloadBytes {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(trimmed)
	if err != nil || len(quoted) > maxPayloadBytes {
		return nil
	}
	return quoted
}
