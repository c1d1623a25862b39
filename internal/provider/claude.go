package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/twistedxcom/panedeck/internal/hook"
)

// ClaudeSettingsPath is where Claude reads project-local settings.
const ClaudeSettingsPath = ".claude/settings.local.json"

// hookMarker identifies entries this package owns, so regeneration
// replaces them instead of stacking duplicates.
const hookMarker = " notify --event "

type claudeHookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type claudeHookMatcher struct {
	Matcher string            `json:"matcher,omitempty"`
	Hooks   []claudeHookEntry `json:"hooks"`
}

// claudeHookEvents maps Claude hook events to dashboard event kinds.
var claudeHookEvents = []struct {
	Event   string
	Matcher string
	Kind    string
}{
	{Event: "UserPromptSubmit", Kind: hook.KindStart},
	{Event: "Stop", Kind: hook.KindEnd},
	{Event: "Notification", Matcher: "permission_prompt", Kind: hook.KindPermission},
}

// Claude wires Claude Code through its settings hooks.
type Claude struct{}

func (Claude) Name() string    { return "claude" }
func (Claude) Command() string { return "claude" }

// GenerateFiles merges panedeck hooks into .claude/settings.local.json,
// keeping every other key and user hook.
func (Claude) GenerateFiles(taskID, workDir string) ([]File, error) {
	if taskID == "" {
		return nil, errors.New("claude: empty task id")
	}
	settingsPath := filepath.Join(workDir, ClaudeSettingsPath)

	raw := make(map[string]json.RawMessage)
	data, err := os.ReadFile(settingsPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ClaudeSettingsPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", ClaudeSettingsPath, err)
	}

	hooks := make(map[string]json.RawMessage)
	if h, ok := raw["hooks"]; ok {
		if err := json.Unmarshal(h, &hooks); err != nil {
			hooks = make(map[string]json.RawMessage)
		}
	}

	for _, cfg := range claudeHookEvents {
		cmd := shellJoin(notifyArgs("notify", taskID, "--event", cfg.Kind))
		merged, err := mergeClaudeHook(hooks[cfg.Event], cfg.Matcher, cmd)
		if err != nil {
			return nil, err
		}
		hooks[cfg.Event] = merged
	}

	hooksRaw, err := json.Marshal(hooks)
	if err != nil {
		return nil, fmt.Errorf("marshal hooks: %w", err)
	}
	raw["hooks"] = hooksRaw

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return []File{{Path: ClaudeSettingsPath, Content: append(out, '\n')}}, nil
}

// mergeClaudeHook drops stale panedeck entries from an event's matcher list
// and adds cmd under matcher.
func mergeClaudeHook(existing json.RawMessage, matcher, cmd string) (json.RawMessage, error) {
	var matchers []claudeHookMatcher
	if existing != nil {
		if err := json.Unmarshal(existing, &matchers); err != nil {
			matchers = nil
		}
	}

	kept := matchers[:0]
	for _, m := range matchers {
		hooks := m.Hooks[:0]
		for _, h := range m.Hooks {
			if !isOwnedHook(h.Command) {
				hooks = append(hooks, h)
			}
		}
		m.Hooks = hooks
		if len(m.Hooks) > 0 || m.Matcher == matcher {
			kept = append(kept, m)
		}
	}

	entry := claudeHookEntry{Type: "command", Command: cmd}
	placed := false
	for i := range kept {
		if kept[i].Matcher == matcher {
			kept[i].Hooks = append(kept[i].Hooks, entry)
			placed = true
			break
		}
	}
	if !placed {
		kept = append(kept, claudeHookMatcher{Matcher: matcher, Hooks: []claudeHookEntry{entry}})
	}
	return json.Marshal(kept)
}

func isOwnedHook(cmd string) bool {
	return strings.Contains(cmd, hookMarker) && strings.Contains(cmd, " --task ")
}
