// Package git runs the git worktree operations behind worktree-backed panes.
package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/twistedxcom/panedeck/internal/logging"
)

var worktreeLog = logging.ForComponent(logging.CompWorktree)

// ErrNotGitRepo is returned when a directory is not inside a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

const commandTimeout = 30 * time.Second

// Worktree represents a git worktree
type Worktree struct {
	Path   string // Filesystem path to the worktree
	Branch string // Branch name checked out in this worktree
	Commit string // HEAD commit SHA
	Bare   bool   // Whether this is the bare repository
}

// listGroup collapses concurrent listings of the same repository into one
// git subprocess.
var listGroup singleflight.Group

func gitCmd(ctx context.Context, dir string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
}

func run(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := gitCmd(ctx, dir, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsGitRepo checks if the given directory is inside a git repository
func IsGitRepo(dir string) bool {
	_, err := run(dir, "rev-parse", "--git-dir")
	return err == nil
}

// GetRepoRoot returns the root directory of the git repository containing dir
func GetRepoRoot(dir string) (string, error) {
	out, err := run(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
	}
	return out, nil
}

// BranchExists checks if a branch exists in the repository
func BranchExists(repoDir, branchName string) bool {
	_, err := run(repoDir, "show-ref", "--verify", "--quiet", "refs/heads/"+branchName)
	return err == nil
}

// IsWorktree checks if the given directory is a linked worktree (not the main repo)
func IsWorktree(dir string) bool {
	commonDir, err := run(dir, "rev-parse", "--git-common-dir")
	if err != nil {
		return false
	}
	gitDir, err := run(dir, "rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	return commonDir != gitDir && commonDir != "."
}

// GetWorktreeBaseRoot returns the main repository root, following a linked
// worktree back to its origin so new worktrees are never nested.
func GetWorktreeBaseRoot(dir string) (string, error) {
	if !IsWorktree(dir) {
		return GetRepoRoot(dir)
	}
	commonDir, err := run(dir, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", fmt.Errorf("failed to get common git dir: %w", err)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Clean(filepath.Join(dir, commonDir))
	}
	if filepath.Base(commonDir) == ".git" {
		return filepath.Dir(commonDir), nil
	}
	return GetRepoRoot(dir)
}

// ValidateBranchName validates that a branch name follows git's naming rules
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return errors.New("branch name cannot be empty")
	case strings.TrimSpace(name) != name:
		return errors.New("branch name cannot have leading or trailing spaces")
	case strings.Contains(name, ".."):
		return errors.New("branch name cannot contain '..'")
	case strings.HasPrefix(name, "."):
		return errors.New("branch name cannot start with '.'")
	case strings.HasSuffix(name, ".lock"):
		return errors.New("branch name cannot end with '.lock'")
	case strings.Contains(name, "@{"):
		return errors.New("branch name cannot contain '@{'")
	case name == "@":
		return errors.New("branch name cannot be just '@'")
	}
	for _, char := range []string{" ", "\t", "~", "^", ":", "?", "*", "[", "\\"} {
		if strings.Contains(name, char) {
			return fmt.Errorf("branch name cannot contain '%s'", char)
		}
	}
	return nil
}

// CreateWorktree creates a sibling worktree for branch and returns its path.
func CreateWorktree(repoDir, branch string) (string, error) {
	return CreateWorktreeAt(repoDir, branch, "sibling")
}

// CreateWorktreeAt creates a worktree for branch using a location strategy
// (see GenerateWorktreePath). The branch is created when it does not exist.
func CreateWorktreeAt(repoDir, branch, location string) (string, error) {
	if err := ValidateBranchName(branch); err != nil {
		return "", fmt.Errorf("invalid branch name: %w", err)
	}
	root, err := GetWorktreeBaseRoot(repoDir)
	if err != nil {
		return "", err
	}

	path := GenerateWorktreePath(root, branch, location)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("worktree path already exists: %s", path)
	}

	args := []string{"worktree", "add", path, branch}
	if !BranchExists(root, branch) {
		args = []string{"worktree", "add", "-b", branch, path}
	}
	if _, err := run(root, args...); err != nil {
		return "", fmt.Errorf("failed to create worktree: %w", err)
	}
	listGroup.Forget(root)

	worktreeLog.Info("worktree_created", slog.String("repo", root), slog.String("branch", branch), slog.String("path", path))
	return path, nil
}

// ListWorktrees returns all worktrees for the repository at repoDir.
// Concurrent calls for the same repository share one git invocation.
func ListWorktrees(repoDir string) ([]Worktree, error) {
	if !IsGitRepo(repoDir) {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, repoDir)
	}
	v, err, _ := listGroup.Do(repoDir, func() (any, error) {
		out, err := run(repoDir, "worktree", "list", "--porcelain")
		if err != nil {
			return nil, fmt.Errorf("failed to list worktrees: %w", err)
		}
		return parseWorktreeList(out), nil
	})
	if err != nil {
		return nil, err
	}
	src := v.([]Worktree)
	// Shared result; hand each caller its own slice.
	return append([]Worktree(nil), src...), nil
}

// parseWorktreeList parses the output of `git worktree list --porcelain`
func parseWorktreeList(output string) []Worktree {
	var worktrees []Worktree
	var current Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = Worktree{}
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Branch = ""
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees
}

// DeleteWorktree force-removes a linked worktree. A directory that is
// already gone is pruned from git's bookkeeping instead.
func DeleteWorktree(repoDir string, wt Worktree) error {
	if wt.Bare || wt.Path == "" {
		return fmt.Errorf("refusing to delete worktree %q", wt.Path)
	}
	root, err := GetRepoRoot(repoDir)
	if err != nil {
		return err
	}
	if filepath.Clean(wt.Path) == filepath.Clean(root) {
		return fmt.Errorf("refusing to delete the main worktree %s", root)
	}

	defer listGroup.Forget(repoDir)
	defer listGroup.Forget(root)

	if _, statErr := os.Stat(wt.Path); errors.Is(statErr, os.ErrNotExist) {
		return PruneWorktrees(root)
	}
	if _, err := run(root, "worktree", "remove", "--force", wt.Path); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	worktreeLog.Info("worktree_deleted", slog.String("repo", root), slog.String("path", wt.Path))
	return nil
}

// PruneWorktrees removes stale worktree references
func PruneWorktrees(repoDir string) error {
	if _, err := run(repoDir, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}
