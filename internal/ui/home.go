// Package ui is the dashboard: one bubbletea model that owns every pane,
// polls their terminals, applies hook events and renders the layout.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/twistedxcom/panedeck/internal/activity"
	"github.com/twistedxcom/panedeck/internal/git"
	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/logging"
	"github.com/twistedxcom/panedeck/internal/platform"
	"github.com/twistedxcom/panedeck/internal/provider"
	"github.com/twistedxcom/panedeck/internal/screen"
	"github.com/twistedxcom/panedeck/internal/session"
	"github.com/twistedxcom/panedeck/internal/statedb"
	"github.com/twistedxcom/panedeck/internal/web"
)

var uiLog = logging.ForComponent(logging.CompUI)

const (
	// DefaultTickInterval is how often pane output is polled and drawn.
	DefaultTickInterval = 33 * time.Millisecond

	// publishEvery bounds how stale the status mirror gets while only
	// output changes.
	publishEvery = time.Second

	errorDisplayTime = 5 * time.Second
	statusBarHeight  = 1
)

type mode int

const (
	modeNavigate mode = iota
	modeFocus
	modeNewPane
	modeFilter
)

// Options wires the dashboard to its collaborators. Only Collection and
// Engine are required.
type Options struct {
	Collection *session.Collection
	Engine     *session.Engine

	Storage *session.Storage
	Hooks   <-chan hook.Event
	Journal *statedb.Journal
	Watcher *git.Watcher
	Web     *web.Server

	// RepoDir is the repository new worktrees branch from; empty disables n.
	RepoDir string
	// BaseDir is where plain shell panes start.
	BaseDir          string
	Provider         provider.Provider
	PaneDefaults     session.PaneOptions
	WorktreeLocation string
	Theme            string // "system" follows the OS appearance
	TickInterval     time.Duration
}

// Home is the root model.
type Home struct {
	opts   Options
	panes  *session.Collection
	engine *session.Engine
	keys   keyMap

	mode          mode
	width, height int

	branchInput textinput.Model
	filterInput textinput.Model
	matches     []int

	err        error
	errTime    time.Time
	notice     string
	noticeTime time.Time
	pending    int

	dirty       bool
	lastPublish time.Time
	hooksClosed bool

	ctx          context.Context
	cancel       context.CancelFunc
	themeWatcher *ThemeWatcher
}

// NewHome builds the dashboard model.
func NewHome(opts Options) *Home {
	if opts.Collection == nil {
		opts.Collection = session.NewCollection()
	}
	if opts.Engine == nil {
		opts.Engine = session.NewEngine(session.EngineOptions{})
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.WorktreeLocation == "" {
		opts.WorktreeLocation = "sibling"
	}

	branch := textinput.New()
	branch.Placeholder = "feature/my-branch"
	branch.CharLimit = 100
	branch.Width = 40

	filter := textinput.New()
	filter.Placeholder = "pane, task or directory"
	filter.CharLimit = 60
	filter.Width = 30

	ctx, cancel := context.WithCancel(context.Background())
	return &Home{
		opts:        opts,
		panes:       opts.Collection,
		engine:      opts.Engine,
		keys:        defaultKeyMap(),
		branchInput: branch,
		filterInput: filter,
		dirty:       true,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Collection exposes the owned panes (read it only from Update or after
// the program has exited).
func (h *Home) Collection() *session.Collection { return h.panes }

func (h *Home) Init() tea.Cmd {
	for _, p := range h.panes.Panes() {
		h.watch(p)
		if p.Session == nil && p.SpawnErr == nil {
			_ = p.Spawn()
		}
	}

	cmds := []tea.Cmd{tickCmd(h.opts.TickInterval)}
	if h.opts.Hooks != nil {
		cmds = append(cmds, waitForHook(h.opts.Hooks))
	}
	if h.opts.Watcher != nil {
		cmds = append(cmds, waitForRemoval(h.opts.Watcher))
	}
	if h.opts.Theme == "system" {
		if tw := NewThemeWatcher(h.ctx); tw != nil {
			h.themeWatcher = tw
			cmds = append(cmds, tw.wait())
		}
	}
	return tea.Batch(cmds...)
}

func (h *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width, h.height = msg.Width, msg.Height
		h.relayout()
		return h, nil

	case tickMsg:
		cmd := h.pollPanes()
		if h.dirty || time.Since(h.lastPublish) >= publishEvery {
			h.publish()
		}
		return h, tea.Batch(cmd, tickCmd(h.opts.TickInterval))

	case hookMsg:
		if !msg.ok {
			h.hooksClosed = true
			uiLog.Warn("hook_channel_closed")
			return h, nil
		}
		h.applyHook(msg.ev)
		h.publish()
		return h, waitForHook(h.opts.Hooks)

	case worktreeRemovedMsg:
		var cmd tea.Cmd
		if p := h.panes.FindByWorkDir(msg.path); p != nil {
			uiLog.Info("worktree_vanished", slog.String("pane", p.ID), slog.String("path", msg.path))
			cmd = h.removePane(p, false)
		}
		return h, tea.Batch(cmd, waitForRemoval(h.opts.Watcher))

	case worktreeReadyMsg:
		h.pending--
		if msg.err != nil {
			h.setError(msg.err)
			return h, nil
		}
		opts := h.opts.PaneDefaults
		opts.TaskID = msg.taskID
		opts.Title = msg.branch
		opts.WorkDir = msg.path
		opts.Command = provider.CommandLine(msg.prov)
		opts.Env = provider.PaneEnv(msg.prov, msg.path)
		h.addPane(opts)
		return h, nil

	case terminatedMsg:
		return h, nil

	case worktreeDeletedMsg:
		if msg.err != nil {
			h.setError(fmt.Errorf("delete worktree: %w", msg.err))
		}
		return h, nil

	case copiedMsg:
		if msg.err != nil {
			h.setError(fmt.Errorf("copy: %w", msg.err))
			return h, nil
		}
		h.notice = fmt.Sprintf("copied %d lines (%s)", msg.res.Lines, msg.res.Method)
		h.noticeTime = time.Now()
		return h, nil

	case themeChangedMsg:
		if msg.dark {
			InitTheme(string(ThemeDark))
		} else {
			InitTheme(string(ThemeLight))
		}
		return h, h.themeWatcher.wait()

	case tea.KeyMsg:
		switch h.mode {
		case modeFocus:
			return h, h.handleFocusKey(msg)
		case modeNewPane:
			return h, h.handleNewPaneKey(msg)
		case modeFilter:
			return h, h.handleFilterKey(msg)
		default:
			return h, h.handleNavigateKey(msg)
		}
	}
	return h, nil
}

func (h *Home) handleNavigateKey(msg tea.KeyMsg) tea.Cmd {
	k := h.keys
	p := h.panes.Selected()
	switch {
	case key.Matches(msg, k.Quit):
		h.save()
		return tea.Quit

	case key.Matches(msg, k.Next):
		h.panes.SelectNext()
		h.afterSelection()

	case key.Matches(msg, k.Prev):
		h.panes.SelectPrev()
		h.afterSelection()

	case key.Matches(msg, k.Focus):
		if p == nil {
			return nil
		}
		if !p.Running() {
			h.setError(fmt.Errorf("%s is not running (r to respawn)", paneLabel(p)))
			return nil
		}
		p.Screen.ScrollBy(-p.Screen.ScrollOffset())
		h.mode = modeFocus

	case key.Matches(msg, k.Layout):
		mode := h.panes.CycleLayout()
		uiLog.Debug("layout_changed", slog.String("layout", mode.String()))
		h.relayout()
		h.save()
		h.dirty = true

	case key.Matches(msg, k.NewPane):
		if h.opts.RepoDir == "" {
			h.setError(errors.New("not started inside a git repository"))
			return nil
		}
		if h.opts.Provider == nil {
			h.setError(errors.New("no agent provider configured"))
			return nil
		}
		h.mode = modeNewPane
		h.branchInput.Reset()
		return h.branchInput.Focus()

	case key.Matches(msg, k.NewShell):
		opts := h.opts.PaneDefaults
		opts.WorkDir = h.opts.BaseDir
		opts.Title = filepath.Base(h.opts.BaseDir)
		h.addPane(opts)

	case key.Matches(msg, k.RemoveTree):
		if p != nil {
			return h.removePane(p, true)
		}

	case key.Matches(msg, k.Remove):
		if p != nil {
			return h.removePane(p, false)
		}

	case key.Matches(msg, k.Retry):
		if p != nil {
			return h.respawn(p)
		}

	case key.Matches(msg, k.Filter):
		if h.panes.Len() == 0 {
			return nil
		}
		h.mode = modeFilter
		h.filterInput.Reset()
		h.matches = filterPanes(h.panes.Panes(), "")
		return h.filterInput.Focus()

	case key.Matches(msg, k.Copy):
		if p != nil {
			text := strings.TrimRight(screen.PlainText(p.Screen), "\n ")
			if text == "" {
				return nil
			}
			return copyCmd(text)
		}

	case key.Matches(msg, k.ScrollUp):
		if p != nil {
			p.Screen.ScrollBy(max(1, p.Rows/2))
		}

	case key.Matches(msg, k.ScrollDown):
		if p != nil {
			p.Screen.ScrollBy(-max(1, p.Rows/2))
		}
	}
	return nil
}

func (h *Home) handleFocusKey(msg tea.KeyMsg) tea.Cmd {
	p := h.panes.Selected()
	if key.Matches(msg, h.keys.Unfocus) || p == nil {
		h.mode = modeNavigate
		return nil
	}
	if b := keyBytes(msg); b != nil {
		p.SendInput(b)
	}
	return nil
}

func (h *Home) handleNewPaneKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		h.mode = modeNavigate
		h.branchInput.Blur()
		return nil
	case tea.KeyEnter:
		branch := strings.TrimSpace(h.branchInput.Value())
		if err := git.ValidateBranchName(branch); err != nil {
			h.setError(err)
			return nil
		}
		h.mode = modeNavigate
		h.branchInput.Blur()
		h.pending++
		return prepareWorktreeCmd(h.opts.RepoDir, branch, h.opts.WorktreeLocation, h.opts.Provider)
	}
	var cmd tea.Cmd
	h.branchInput, cmd = h.branchInput.Update(msg)
	return cmd
}

func (h *Home) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		h.mode = modeNavigate
		h.filterInput.Blur()
		return nil
	case tea.KeyEnter:
		if len(h.matches) > 0 {
			h.panes.Select(h.matches[0])
			h.afterSelection()
		}
		h.mode = modeNavigate
		h.filterInput.Blur()
		return nil
	}
	var cmd tea.Cmd
	h.filterInput, cmd = h.filterInput.Update(msg)
	h.matches = filterPanes(h.panes.Panes(), h.filterInput.Value())
	return cmd
}

// pollPanes drains every pane's pending output. Exited sessions are
// detached and closed in the background.
func (h *Home) pollPanes() tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range h.panes.Panes() {
		data, exited := p.Poll()
		if len(data) > 0 {
			h.engine.ApplyActivity(p, activity.Detect(string(data)))
		}
		if exited {
			uiLog.Info("pane_exited", slog.String("pane", p.ID), slog.Int("code", p.ExitCode))
			cmds = append(cmds, terminateCmd(p.ID, p.Detach()))
			h.dirty = true
			if h.mode == modeFocus && p == h.panes.Selected() {
				h.mode = modeNavigate
			}
		}
	}
	return tea.Batch(cmds...)
}

func (h *Home) applyHook(ev hook.Event) {
	outcome := h.engine.ApplyHook(h.panes, ev)
	if h.opts.Journal == nil {
		return
	}
	row := statedb.HookEventRow{
		Kind:       ev.Kind,
		WorktreeID: ev.WorktreeID,
		SentAt:     ev.Time(),
		ReceivedAt: time.Now(),
		Outcome:    outcome.String(),
		Payload:    ev.HookData,
	}
	if p := h.panes.FindByTask(ev.WorktreeID); p != nil {
		row.PaneID = p.ID
	}
	h.opts.Journal.Record(row)
}

func (h *Home) addPane(opts session.PaneOptions) {
	if opts.Rows == 0 || opts.Cols == 0 {
		opts.Rows, opts.Cols = h.paneGeometryHint()
	}
	p, err := session.NewPane(opts)
	if err != nil {
		h.setError(err)
		return
	}
	h.panes.Add(p)
	if err := p.Spawn(); err != nil {
		h.setError(err)
	}
	h.watch(p)
	h.relayout()
	h.save()
	h.publish()
}

// removePane drops the pane in this Update call; the process is stopped
// by the returned command.
func (h *Home) removePane(p *session.Pane, deleteTree bool) tea.Cmd {
	s := p.Detach()
	h.panes.Remove(p.ID)
	if h.opts.Watcher != nil {
		h.opts.Watcher.Unwatch(p.WorkDir)
	}
	if h.panes.Len() == 0 {
		h.mode = modeNavigate
	}
	uiLog.Info("pane_removed", slog.String("pane", p.ID), slog.Bool("delete_worktree", deleteTree))
	h.relayout()
	h.save()
	h.publish()

	var cmds []tea.Cmd
	if cmd := terminateCmd(p.ID, s); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if deleteTree {
		cmds = append(cmds, deleteWorktreeCmd(p.WorkDir))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Sequence(cmds...)
}

func (h *Home) respawn(p *session.Pane) tea.Cmd {
	if p.Running() {
		h.setError(fmt.Errorf("%s is still running", paneLabel(p)))
		return nil
	}
	old := p.Detach()
	p.ResetScreen()
	h.engine.Reset(p)
	if err := p.Spawn(); err != nil {
		h.setError(err)
	}
	h.dirty = true
	return terminateCmd(p.ID, old)
}

func (h *Home) afterSelection() {
	if h.panes.Layout() == session.LayoutSingle {
		h.relayout()
	}
	h.dirty = true
}

// relayout pushes the current geometry into every visible pane. Each rect
// loses one row to the pane header.
func (h *Home) relayout() {
	if h.width <= 0 || h.height <= 0 {
		return
	}
	for _, pl := range h.panes.Arrange(h.width, h.height-statusBarHeight) {
		pl.Pane.Resize(pl.Rect.H-1, pl.Rect.W)
	}
}

// paneGeometryHint sizes a new pane as if it were shown alone.
func (h *Home) paneGeometryHint() (rows, cols int) {
	if h.width <= 0 || h.height <= 0 {
		return 24, 80
	}
	return max(1, h.height-statusBarHeight-1), h.width
}

func (h *Home) watch(p *session.Pane) {
	if h.opts.Watcher == nil || p.WorkDir == "" {
		return
	}
	if err := h.opts.Watcher.Watch(p.WorkDir); err != nil {
		uiLog.Debug("watch_failed", slog.String("path", p.WorkDir), slog.String("error", err.Error()))
		return
	}
	if warn := platform.CheckFsnotifySupport(p.WorkDir); warn != "" {
		uiLog.Warn("watch_unreliable", slog.String("path", p.WorkDir), slog.String("reason", warn))
	}
}

func (h *Home) save() {
	if h.opts.Storage == nil {
		return
	}
	if err := h.opts.Storage.Save(h.panes); err != nil {
		uiLog.Warn("layout_save_failed", slog.String("error", err.Error()))
	}
}

func (h *Home) publish() {
	h.dirty = false
	h.lastPublish = time.Now()
	if h.opts.Web != nil {
		h.opts.Web.Publish(web.FromCollection(h.panes))
	}
}

func (h *Home) setError(err error) {
	h.err = err
	h.errTime = time.Now()
	if err != nil {
		uiLog.Debug("ui_error", slog.String("error", err.Error()))
	}
}

// Shutdown saves the layout and terminates every pane in parallel. Call it
// once the program has returned.
func (h *Home) Shutdown() {
	h.save()
	if h.themeWatcher != nil {
		h.themeWatcher.Close()
	}
	h.cancel()

	var g errgroup.Group
	for _, p := range h.panes.Panes() {
		s := p.Detach()
		if s == nil {
			continue
		}
		id := p.ID
		g.Go(func() error {
			if err := s.Terminate(); err != nil {
				uiLog.Warn("pane_terminate_failed", slog.String("pane", id), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func paneLabel(p *session.Pane) string {
	if p.Title != "" {
		return p.Title
	}
	return p.TaskID
}
