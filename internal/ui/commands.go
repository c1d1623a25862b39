package ui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/twistedxcom/panedeck/internal/clipboard"
	"github.com/twistedxcom/panedeck/internal/git"
	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/provider"
	"github.com/twistedxcom/panedeck/internal/pty"
)

type tickMsg time.Time

// hookMsg delivers one socket event; ok is false once the listener closed.
type hookMsg struct {
	ev hook.Event
	ok bool
}

type worktreeRemovedMsg struct{ path string }

// worktreeReadyMsg reports a worktree prepared for a new agent pane.
type worktreeReadyMsg struct {
	branch string
	path   string
	taskID string
	prov   provider.Provider
	err    error
}

type terminatedMsg struct {
	paneID string
	err    error
}

type worktreeDeletedMsg struct {
	path string
	err  error
}

type copiedMsg struct {
	res clipboard.Result
	err error
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForHook blocks on the listener queue. Update re-arms it after
// every event so at most one read is pending.
func waitForHook(events <-chan hook.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return hookMsg{ev: ev, ok: ok}
	}
}

func waitForRemoval(w *git.Watcher) tea.Cmd {
	return func() tea.Msg {
		path, ok := <-w.Removed()
		if !ok {
			return nil
		}
		return worktreeRemovedMsg{path: path}
	}
}

// terminateCmd stops a detached session off the render loop.
func terminateCmd(paneID string, s *pty.Session) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		err := s.Terminate()
		if err != nil {
			uiLog.Warn("pane_terminate_failed", slog.String("pane", paneID), slog.String("error", err.Error()))
		}
		return terminatedMsg{paneID: paneID, err: err}
	}
}

// prepareWorktreeCmd reuses the branch's worktree when one exists,
// otherwise creates it, then writes the provider's hook files into it.
func prepareWorktreeCmd(repoDir, branch, location string, prov provider.Provider) tea.Cmd {
	return func() tea.Msg {
		msg := worktreeReadyMsg{branch: branch, prov: prov}
		if err := git.ValidateBranchName(branch); err != nil {
			msg.err = err
			return msg
		}
		path := ""
		if existing, err := git.ListWorktrees(repoDir); err == nil {
			for _, wt := range existing {
				if wt.Branch == branch && !wt.Bare {
					path = wt.Path
					break
				}
			}
		}
		if path == "" {
			created, err := git.CreateWorktreeAt(repoDir, branch, location)
			if err != nil {
				msg.err = err
				return msg
			}
			path = created
		}
		msg.path = path
		msg.taskID = git.NewTaskID(branch)

		files, err := prov.GenerateFiles(msg.taskID, path)
		if err != nil {
			msg.err = fmt.Errorf("%s hook files: %w", prov.Name(), err)
			return msg
		}
		if err := provider.WriteFiles(path, files); err != nil {
			msg.err = fmt.Errorf("%s hook files: %w", prov.Name(), err)
		}
		return msg
	}
}

// deleteWorktreeCmd removes a pane's worktree after the pane is gone.
func deleteWorktreeCmd(path string) tea.Cmd {
	return func() tea.Msg {
		root, err := git.GetWorktreeBaseRoot(path)
		if err == nil {
			err = git.DeleteWorktree(root, git.Worktree{Path: path})
		}
		if err != nil {
			uiLog.Warn("worktree_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return worktreeDeletedMsg{path: path, err: err}
	}
}

// copyCmd runs the clipboard helpers off the loop; they may exec a process.
func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		res, err := clipboard.Copy(text)
		return copiedMsg{res: res, err: err}
	}
}
