package ui

import (
	"context"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	dark "github.com/thiagokokada/dark-mode-go"
)

// ThemeWatcher follows the OS dark mode when theme = "system".
type ThemeWatcher struct {
	changeCh  chan bool // true=dark; newest value wins
	closeCh   chan struct{}
	closeOnce sync.Once
}

// themeChangedMsg carries the new OS appearance into Update.
type themeChangedMsg struct{ dark bool }

// NewThemeWatcher starts watching. It returns nil when the platform cannot
// report appearance changes; callers keep the startup theme.
func NewThemeWatcher(parent context.Context) *ThemeWatcher {
	ctx, cancel := context.WithCancel(parent)
	events, errs, err := dark.WatchDarkMode(ctx)
	if err != nil {
		cancel()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}
	tw := &ThemeWatcher{
		changeCh: make(chan bool, 1),
		closeCh:  make(chan struct{}),
	}
	go tw.loop(cancel, events, errs)
	return tw
}

func (tw *ThemeWatcher) loop(cancel context.CancelFunc, events <-chan bool, errs <-chan error) {
	defer cancel()
	for {
		select {
		case <-tw.closeCh:
			return
		case isDark, ok := <-events:
			if !ok {
				return
			}
			select {
			case <-tw.changeCh:
			default:
			}
			tw.changeCh <- isDark
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
			}
		}
	}
}

// wait blocks until the next appearance change.
func (tw *ThemeWatcher) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case isDark := <-tw.changeCh:
			return themeChangedMsg{dark: isDark}
		case <-tw.closeCh:
			return nil
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (tw *ThemeWatcher) Close() {
	tw.closeOnce.Do(func() { close(tw.closeCh) })
}
