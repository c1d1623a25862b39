package git

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// branchSanitizer replaces filesystem-unsafe characters with dashes.
var branchSanitizer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "-",
	"\"", "-",
	"<", "-",
	">", "-",
	"|", "-",
	"@", "-",
	"#", "-",
	" ", "-",
)

var consecutiveDashes = regexp.MustCompile(`-{2,}`)

// SanitizeBranchForPath converts a branch name to a safe path component.
func SanitizeBranchForPath(branch string) string {
	result := branchSanitizer.Replace(branch)
	result = consecutiveDashes.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// GenerateWorktreePath picks the directory for a new worktree.
//
//	"subdirectory"      <repo>/.worktrees/<branch>
//	"sibling" or ""     <repo>-<branch>
//	a path (has / or ~) <path>/<repo name>/<branch>
func GenerateWorktreePath(repoDir, branchName, location string) string {
	sanitized := SanitizeBranchForPath(branchName)

	if strings.Contains(location, "/") || strings.HasPrefix(location, "~") {
		expanded := location
		if home, err := os.UserHomeDir(); err == nil {
			if expanded == "~" {
				expanded = home
			} else if strings.HasPrefix(expanded, "~/") {
				expanded = filepath.Join(home, expanded[2:])
			}
		}
		return filepath.Join(expanded, filepath.Base(repoDir), sanitized)
	}

	if location == "subdirectory" {
		return filepath.Join(repoDir, ".worktrees", sanitized)
	}
	return repoDir + "-" + sanitized
}

// NewTaskID derives the hook task id for a branch: the sanitized branch
// plus a short random suffix, so reusing a branch name never collides.
func NewTaskID(branch string) string {
	base := SanitizeBranchForPath(branch)
	if base == "" {
		base = "task"
	}
	return base + "-" + generatePathID()
}

// generatePathID returns an 8-character random hex string.
func generatePathID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
