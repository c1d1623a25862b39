package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/panedeck/internal/hook"
)

func withHookCommand(t *testing.T, cmd string) {
	t.Helper()
	old := HookCommand
	HookCommand = cmd
	t.Cleanup(func() { HookCommand = old })
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"claude", "codex"}, Names())

	p, err := Get("Claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())
	assert.Equal(t, []string{"claude"}, CommandLine(p))
	assert.Nil(t, PaneEnv(p, "/w"))

	_, err = Get("gemini")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func claudeHooks(t *testing.T, content []byte) map[string][]claudeHookMatcher {
	t.Helper()
	var doc struct {
		Hooks map[string][]claudeHookMatcher `json:"hooks"`
	}
	require.NoError(t, json.Unmarshal(content, &doc))
	return doc.Hooks
}

func TestClaudeGenerateFilesFresh(t *testing.T) {
	withHookCommand(t, "/usr/local/bin/panedeck")
	dir := t.TempDir()

	files, err := Claude{}.GenerateFiles("wt-1", dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ClaudeSettingsPath, files[0].Path)

	hooks := claudeHooks(t, files[0].Content)
	require.Len(t, hooks, 3)
	assert.Equal(t, "/usr/local/bin/panedeck notify --event start --task wt-1", hooks["UserPromptSubmit"][0].Hooks[0].Command)
	assert.Equal(t, "/usr/local/bin/panedeck notify --event end --task wt-1", hooks["Stop"][0].Hooks[0].Command)
	assert.Equal(t, "permission_prompt", hooks["Notification"][0].Matcher)
	assert.Equal(t, "/usr/local/bin/panedeck notify --event permission --task wt-1", hooks["Notification"][0].Hooks[0].Command)
}

func TestClaudeGenerateFilesPreservesSettings(t *testing.T) {
	withHookCommand(t, "panedeck")
	dir := t.TempDir()
	existing := `{
  "permissions": {"allow": ["Bash(ls:*)"]},
  "hooks": {
    "Stop": [{"hooks": [{"type": "command", "command": "say done"}]}],
    "PreToolUse": [{"matcher": "Bash", "hooks": [{"type": "command", "command": "audit.sh"}]}]
  }
}`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".claude"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClaudeSettingsPath), []byte(existing), 0o644))

	files, err := Claude{}.GenerateFiles("old-task", dir)
	require.NoError(t, err)
	require.NoError(t, WriteFiles(dir, files))

	// Regenerate for a new task: old panedeck entries are replaced.
	files, err = Claude{}.GenerateFiles("new-task", dir)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(files[0].Content, &doc))
	assert.JSONEq(t, `{"allow": ["Bash(ls:*)"]}`, string(doc["permissions"]))

	hooks := claudeHooks(t, files[0].Content)
	require.Contains(t, hooks, "PreToolUse")
	assert.Equal(t, "audit.sh", hooks["PreToolUse"][0].Hooks[0].Command)

	stop := hooks["Stop"]
	require.Len(t, stop, 1)
	require.Len(t, stop[0].Hooks, 2)
	assert.Equal(t, "say done", stop[0].Hooks[0].Command)
	assert.Equal(t, "panedeck notify --event end --task new-task", stop[0].Hooks[1].Command)

	content := string(files[0].Content)
	assert.NotContains(t, content, "old-task")
}

func TestClaudeGenerateFilesErrors(t *testing.T) {
	_, err := Claude{}.GenerateFiles("", t.TempDir())
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".claude"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClaudeSettingsPath), []byte("{broken"), 0o644))
	_, err = Claude{}.GenerateFiles("t", dir)
	assert.Error(t, err)
}

func TestHookCommandQuoted(t *testing.T) {
	withHookCommand(t, "/Applications/My Tools/panedeck")
	files, err := Claude{}.GenerateFiles("it's", t.TempDir())
	require.NoError(t, err)
	hooks := claudeHooks(t, files[0].Content)
	assert.Equal(t, `'/Applications/My Tools/panedeck' notify --event end --task 'it'\''s'`, hooks["Stop"][0].Hooks[0].Command)
}

func TestCodexGenerateFiles(t *testing.T) {
	withHookCommand(t, "/bin/panedeck")
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".codex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CodexConfigPath), []byte("model = \"o4-mini\"\nnotify = [\"old\"]\n"), 0o644))

	p, err := Get("codex")
	require.NoError(t, err)
	files, err := p.GenerateFiles("wt-9", dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	var cfg struct {
		Model  string   `toml:"model"`
		Notify []string `toml:"notify"`
	}
	_, err = toml.Decode(string(files[0].Content), &cfg)
	require.NoError(t, err)
	assert.Equal(t, "o4-mini", cfg.Model)
	assert.Equal(t, []string{"/bin/panedeck", "codex-notify", "--task", "wt-9"}, cfg.Notify)

	env := PaneEnv(p, dir)
	assert.Equal(t, []string{"CODEX_HOME=" + filepath.Join(dir, ".codex")}, env)
}

func TestMapCodexNotify(t *testing.T) {
	tests := []struct {
		payload string
		kind    string
		ok      bool
	}{
		{`{"type":"agent-turn-complete","last-assistant-message":"done"}`, hook.KindEnd, true},
		{`{"type":"exec-approval-request"}`, hook.KindPermission, true},
		{`{"type":"agent-turn-start"}`, hook.KindStart, true},
		{`{"type":"something-else"}`, "", false},
	}
	for _, tt := range tests {
		kind, ok, err := MapCodexNotify([]byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.kind, kind, tt.payload)
		assert.Equal(t, tt.ok, ok, tt.payload)
	}
	_, _, err := MapCodexNotify([]byte("not json"))
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFiles(dir, []File{{Path: "a/b/c.txt", Content: []byte("hi")}}))
	data, err := os.ReadFile(filepath.Join(dir, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	err = WriteFiles(dir, []File{{Path: "../escape.txt", Content: []byte("x")}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "escapes"))
}
