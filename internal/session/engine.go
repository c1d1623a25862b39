package session

import (
	"log/slog"

	"github.com/twistedxcom/panedeck/internal/activity"
	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/logging"
)

var stateLog = logging.ForComponent(logging.CompState)

// Kind is a parsed hook event kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindStart
	KindEnd
	KindPermission
)

// ParseKind maps the wire string. Anything unrecognised is KindUnknown and
// the caller keeps the raw string.
func ParseKind(raw string) Kind {
	switch raw {
	case hook.KindStart:
		return KindStart
	case hook.KindEnd:
		return KindEnd
	case hook.KindPermission:
		return KindPermission
	default:
		return KindUnknown
	}
}

// Outcome says what ApplyHook did with an event.
type Outcome int

const (
	// OutcomeApplied: the pane's state was set.
	OutcomeApplied Outcome = iota
	// OutcomeUnknown: the pane exists but the kind is unrecognised.
	OutcomeUnknown
	// OutcomeUnmatched: no tracked pane has this worktree id.
	OutcomeUnmatched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "unmatched"
	}
}

const maxUnknownKinds = 32

// Engine is the only code that changes a pane's ClaudeState. It runs on
// the render loop and takes no locks.
type Engine struct {
	activityTransitions bool
	unknown             map[string]int
}

// EngineOptions configures optional heuristics.
type EngineOptions struct {
	// ActivityTransitions lets a task-completed detection end a running pane.
	ActivityTransitions bool
}

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		activityTransitions: opts.ActivityTransitions,
		unknown:             make(map[string]int),
	}
}

// ApplyHook applies one hook event to the collection.
func (e *Engine) ApplyHook(c *Collection, ev hook.Event) Outcome {
	p := c.FindByTask(ev.WorktreeID)
	if p == nil {
		stateLog.Debug("hook_unmatched", slog.String("worktree", ev.WorktreeID), slog.String("event", ev.Kind))
		return OutcomeUnmatched
	}

	var next ClaudeState
	switch ParseKind(ev.Kind) {
	case KindStart:
		next = StateRunning
	case KindEnd:
		next = StateDone
	case KindPermission:
		next = StateNeedsPermissions
	default:
		e.recordUnknown(ev.Kind)
		stateLog.Debug("hook_unknown_kind", slog.String("pane", p.ID), slog.String("event", ev.Kind))
		return OutcomeUnknown
	}

	if p.State != next {
		stateLog.Info("pane_state_changed",
			slog.String("pane", p.ID),
			slog.String("from", p.State.String()),
			slog.String("to", next.String()))
	}
	p.State = next
	p.LastHookAt = ev.Time()
	return OutcomeApplied
}

// ApplyActivity records detections on the pane and, when enabled, lets a
// completion phrase finish a running task.
func (e *Engine) ApplyActivity(p *Pane, dets []activity.Detection) {
	if p == nil || len(dets) == 0 {
		return
	}
	p.recordActivity(dets)
	if !e.activityTransitions || p.State != StateRunning {
		return
	}
	for _, d := range dets {
		if d.Kind == activity.TaskCompleted {
			stateLog.Info("pane_state_changed",
				slog.String("pane", p.ID),
				slog.String("from", p.State.String()),
				slog.String("to", StateDone.String()),
				slog.String("source", "activity"))
			p.State = StateDone
			return
		}
	}
}

// Reset returns a pane to idle before a new run in the same worktree.
func (e *Engine) Reset(p *Pane) {
	if p != nil {
		p.State = StateIdle
	}
}

// UnknownKinds returns how often each unrecognised kind was seen.
func (e *Engine) UnknownKinds() map[string]int {
	out := make(map[string]int, len(e.unknown))
	for k, v := range e.unknown {
		out[k] = v
	}
	return out
}

func (e *Engine) recordUnknown(raw string) {
	if _, ok := e.unknown[raw]; !ok && len(e.unknown) >= maxUnknownKinds {
		return
	}
	e.unknown[raw]++
}
