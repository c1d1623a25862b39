package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/twistedxcom/panedeck/internal/hook"
)

// CodexConfigPath is the config file inside the pane's CODEX_HOME.
const CodexConfigPath = ".codex/config.toml"

// Codex wires the Codex CLI through its notify program.
type Codex struct{}

func (Codex) Name() string    { return "codex" }
func (Codex) Command() string { return "codex" }

// Env points Codex at the worktree-local config.
func (Codex) Env(workDir string) []string {
	return []string{"CODEX_HOME=" + filepath.Join(workDir, filepath.Dir(CodexConfigPath))}
}

// GenerateFiles sets notify in .codex/config.toml and keeps the other keys.
func (Codex) GenerateFiles(taskID, workDir string) ([]File, error) {
	if taskID == "" {
		return nil, errors.New("codex: empty task id")
	}
	cfg := make(map[string]any)
	path := filepath.Join(workDir, CodexConfigPath)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("parse %s: %w", CodexConfigPath, err)
	}
	cfg["notify"] = notifyArgs("codex-notify", taskID)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", CodexConfigPath, err)
	}
	return []File{{Path: CodexConfigPath, Content: buf.Bytes()}}, nil
}

// codexNotification is the JSON Codex passes as the last notify argument.
type codexNotification struct {
	Type string `json:"type"`
}

// MapCodexNotify translates a Codex notify payload into a hook event kind.
// ok is false for notifications that carry no lifecycle meaning.
func MapCodexNotify(payload []byte) (kind string, ok bool, err error) {
	var n codexNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return "", false, fmt.Errorf("codex notify payload: %w", err)
	}
	t := strings.ToLower(n.Type)
	switch {
	case t == "agent-turn-complete":
		return hook.KindEnd, true, nil
	case strings.Contains(t, "approval"), strings.Contains(t, "permission"):
		return hook.KindPermission, true, nil
	case t == "agent-turn-start", t == "user-input", strings.HasPrefix(t, "task-start"):
		return hook.KindStart, true, nil
	default:
		return "", false, nil
	}
}
