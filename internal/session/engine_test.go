package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/panedeck/internal/activity"
	"github.com/twistedxcom/panedeck/internal/hook"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"start", KindStart},
		{"end", KindEnd},
		{"permission", KindPermission},
		{"Start", KindUnknown},
		{"", KindUnknown},
		{"compact", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseKind(tt.raw), tt.raw)
	}
}

func TestApplyHookTransitions(t *testing.T) {
	tests := []struct {
		kind string
		want ClaudeState
	}{
		{hook.KindStart, StateRunning},
		{hook.KindEnd, StateDone},
		{hook.KindPermission, StateNeedsPermissions},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c := NewCollection()
			p := newTestPane(t, "task-1")
			c.Add(p)

			e := NewEngine(EngineOptions{})
			out := e.ApplyHook(c, hook.NewEvent(tt.kind, "task-1", nil))
			assert.Equal(t, OutcomeApplied, out)
			assert.Equal(t, tt.want, p.State)
			assert.False(t, p.LastHookAt.IsZero())
		})
	}
}

func TestApplyHookLastEventWins(t *testing.T) {
	kinds := []string{hook.KindStart, hook.KindEnd, hook.KindPermission}
	want := map[string]ClaudeState{
		hook.KindStart:      StateRunning,
		hook.KindEnd:        StateDone,
		hook.KindPermission: StateNeedsPermissions,
	}

	// Every sequence of length 1..4 over the three kinds.
	var seqs [][]string
	var build func(prefix []string)
	build = func(prefix []string) {
		if len(prefix) > 0 {
			seqs = append(seqs, append([]string(nil), prefix...))
		}
		if len(prefix) == 4 {
			return
		}
		for _, k := range kinds {
			build(append(prefix, k))
		}
	}
	build(nil)

	for _, seq := range seqs {
		c := NewCollection()
		p := newTestPane(t, "w")
		c.Add(p)
		e := NewEngine(EngineOptions{})
		for _, k := range seq {
			e.ApplyHook(c, hook.NewEvent(k, "w", nil))
		}
		assert.Equal(t, want[seq[len(seq)-1]], p.State, fmt.Sprint(seq))
	}
}

func TestApplyHookUnknownWorktreeIsNoop(t *testing.T) {
	c := NewCollection()
	a := newTestPane(t, "a")
	b := newTestPane(t, "b")
	c.Add(a)
	c.Add(b)
	a.State = StateRunning

	e := NewEngine(EngineOptions{})
	out := e.ApplyHook(c, hook.NewEvent(hook.KindEnd, "nope", nil))

	assert.Equal(t, OutcomeUnmatched, out)
	assert.Equal(t, StateRunning, a.State)
	assert.Equal(t, StateIdle, b.State)
	assert.Equal(t, OutcomeUnmatched, e.ApplyHook(c, hook.NewEvent(hook.KindEnd, "", nil)))
}

func TestApplyHookUnknownKindRecorded(t *testing.T) {
	c := NewCollection()
	p := newTestPane(t, "a")
	c.Add(p)
	p.State = StateRunning

	e := NewEngine(EngineOptions{})
	assert.Equal(t, OutcomeUnknown, e.ApplyHook(c, hook.NewEvent("compact", "a", nil)))
	assert.Equal(t, OutcomeUnknown, e.ApplyHook(c, hook.NewEvent("compact", "a", nil)))

	assert.Equal(t, StateRunning, p.State)
	assert.Equal(t, map[string]int{"compact": 2}, e.UnknownKinds())
}

func TestUnknownKindsBounded(t *testing.T) {
	c := NewCollection()
	c.Add(newTestPane(t, "a"))
	e := NewEngine(EngineOptions{})
	for i := 0; i < maxUnknownKinds+10; i++ {
		e.ApplyHook(c, hook.NewEvent(fmt.Sprintf("k%d", i), "a", nil))
	}
	assert.Len(t, e.UnknownKinds(), maxUnknownKinds)
}

func TestApplyActivity(t *testing.T) {
	done := []activity.Detection{{Kind: activity.TaskCompleted, Text: "All tests passed"}}

	t.Run("disabled keeps state", func(t *testing.T) {
		p := newTestPane(t, "a")
		p.State = StateRunning
		NewEngine(EngineOptions{}).ApplyActivity(p, done)
		assert.Equal(t, StateRunning, p.State)
		assert.Len(t, p.Activity, 1)
	})

	t.Run("enabled finishes running pane", func(t *testing.T) {
		p := newTestPane(t, "a")
		p.State = StateRunning
		NewEngine(EngineOptions{ActivityTransitions: true}).ApplyActivity(p, done)
		assert.Equal(t, StateDone, p.State)
	})

	t.Run("enabled ignores idle pane", func(t *testing.T) {
		p := newTestPane(t, "a")
		NewEngine(EngineOptions{ActivityTransitions: true}).ApplyActivity(p, done)
		assert.Equal(t, StateIdle, p.State)
	})

	t.Run("recent activity is bounded", func(t *testing.T) {
		p := newTestPane(t, "a")
		e := NewEngine(EngineOptions{})
		for i := 0; i < maxRecentActivity+5; i++ {
			e.ApplyActivity(p, []activity.Detection{{Kind: activity.CommandExecuted, Text: fmt.Sprint(i)}})
		}
		require.Len(t, p.Activity, maxRecentActivity)
		assert.Equal(t, fmt.Sprint(maxRecentActivity+4), p.Activity[maxRecentActivity-1].Text)
	})
}

func TestEngineReset(t *testing.T) {
	p := newTestPane(t, "a")
	p.State = StateDone
	e := NewEngine(EngineOptions{})
	e.Reset(p)
	assert.Equal(t, StateIdle, p.State)
	e.Reset(nil)
}

// A hook sent over the socket reaches the pane on the first drain after
// it arrives.
func TestSocketToStateWithinOneTick(t *testing.T) {
	dir, err := os.MkdirTemp("", "pds")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	l, err := hook.Listen(hook.ListenerConfig{SocketPath: filepath.Join(dir, "h.sock")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	c := NewCollection()
	p := newTestPane(t, "wt-42")
	c.Add(p)
	e := NewEngine(EngineOptions{})

	require.NoError(t, hook.Send(l.Path(), hook.NewEvent(hook.KindStart, "wt-42", nil)))

	// One tick: block for the first event, then drain whatever else is queued.
	tick := func() {
		select {
		case ev := <-l.Events():
			e.ApplyHook(c, ev)
		case <-time.After(3 * time.Second):
			t.Fatal("no hook event arrived")
		}
		for {
			select {
			case ev := <-l.Events():
				e.ApplyHook(c, ev)
			default:
				return
			}
		}
	}
	tick()
	assert.Equal(t, StateRunning, p.State)

	require.NoError(t, hook.Send(l.Path(), hook.NewEvent(hook.KindPermission, "wt-42", []byte(`{"message":"allow?"}`))))
	tick()
	assert.Equal(t, StateNeedsPermissions, p.State)
}
