// Package provider generates the per-worktree files that make an agent CLI
// report its lifecycle to the dashboard's hook socket.
package provider

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned by Get for an unregistered name.
var ErrUnknownProvider = errors.New("unknown provider")

// File is one file a provider wants written, relative to the worktree.
type File struct {
	Path    string
	Content []byte
	Mode    os.FileMode
}

// Provider knows how to launch one agent CLI and wire its hooks.
type Provider interface {
	Name() string
	// Command is the program started in the pane.
	Command() string
	// GenerateFiles returns the files that route the agent's lifecycle
	// events for taskID. Existing user settings in workDir are preserved.
	GenerateFiles(taskID, workDir string) ([]File, error)
}

// EnvProvider is implemented by providers that need extra environment
// variables in the pane.
type EnvProvider interface {
	Env(workDir string) []string
}

// HookCommand is the executable generated hooks invoke. Defaults to the
// running binary so hooks keep working without panedeck on $PATH.
var HookCommand = defaultHookCommand()

func defaultHookCommand() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return "panedeck"
}

var registry = map[string]Provider{}

func register(p Provider) { registry[p.Name()] = p }

func init() {
	register(Claude{})
	register(Codex{})
}

// Get returns the provider registered under name.
func Get(name string) (Provider, error) {
	p, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownProvider, name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CommandLine returns the argv a pane runs for p.
func CommandLine(p Provider) []string {
	return []string{p.Command()}
}

// PaneEnv returns extra environment for p, if any.
func PaneEnv(p Provider, workDir string) []string {
	if ep, ok := p.(EnvProvider); ok {
		return ep.Env(workDir)
	}
	return nil
}

// WriteFiles writes files under workDir atomically, creating directories.
// Paths may not escape workDir.
func WriteFiles(workDir string, files []File) error {
	for _, f := range files {
		dst := filepath.Join(workDir, f.Path)
		rel, err := filepath.Rel(workDir, dst)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("provider file %q escapes %s", f.Path, workDir)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, f.Content, mode); err != nil {
			return fmt.Errorf("write %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, dst); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", dst, err)
		}
	}
	return nil
}

// notifyArgs is the hook invocation shared by providers.
func notifyArgs(sub, taskID string, extra ...string) []string {
	args := []string{HookCommand, sub}
	args = append(args, extra...)
	return append(args, "--task", taskID)
}

// shellJoin quotes args for a hook "command" string run by a shell.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:@+,", r):
		return false
	}
	return true
}
