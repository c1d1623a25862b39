package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/twistedxcom/panedeck/internal/screen"
	"github.com/twistedxcom/panedeck/internal/session"
)

func (h *Home) View() string {
	if h.width <= 0 || h.height <= 0 {
		return "starting panedeck..."
	}
	body := h.renderPanes(h.width, h.height-statusBarHeight)
	return lipgloss.JoinVertical(lipgloss.Left, body, h.renderStatusBar())
}

// renderPanes draws every placement. Placements come row by row, so a
// change of Y starts a new row.
func (h *Home) renderPanes(width, height int) string {
	placements := h.panes.Arrange(width, height)
	if len(placements) == 0 {
		return EmptyStyle.Width(width).Height(max(1, height)).
			Render("no panes\n\nn opens a worktree agent, s opens a shell")
	}

	selected := h.panes.Selected()
	var rows []string
	var row []string
	lastY := placements[0].Rect.Y
	for _, pl := range placements {
		if pl.Rect.Y != lastY {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
			lastY = pl.Rect.Y
		}
		isSel := pl.Pane == selected
		row = append(row, h.renderPane(pl.Pane, pl.Rect, isSel, isSel && h.mode == modeFocus))
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (h *Home) renderPane(p *session.Pane, r session.Rect, selected, focused bool) string {
	header := renderHeader(p, r.W, selected, focused)
	if r.H <= 1 {
		return header
	}

	var content string
	if p.SpawnErr != nil {
		content = ErrorStyle.Render("spawn failed: "+p.SpawnErr.Error()) + "\n\n" +
			DimStyle.Render("r to retry, x to remove")
	} else {
		content = screen.Render(p.Screen, focused)
	}
	box := lipgloss.NewStyle().
		Width(r.W).MaxWidth(r.W).
		Height(r.H - 1).MaxHeight(r.H - 1).
		Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, box)
}

// renderHeader is the one-line title bar: name on the left, state and
// process status on the right.
func renderHeader(p *session.Pane, width int, selected, focused bool) string {
	style := HeaderStyle
	switch {
	case focused:
		style = HeaderFocusedStyle
	case selected:
		style = HeaderSelectedStyle
	}

	right := StateIndicator(p.State)
	switch {
	case p.SpawnErr != nil:
		right = ErrorStyle.Render("failed") + " " + right
	case p.Exited:
		right = DimStyle.Render(fmt.Sprintf("exited %d", p.ExitCode)) + " " + right
	}
	if off := p.Screen.ScrollOffset(); off > 0 {
		right = DimStyle.Render(fmt.Sprintf("[+%d]", off)) + " " + right
	}
	right += " "

	avail := width - lipgloss.Width(right) - 2
	title := paneLabel(p)
	if avail < 1 {
		return style.Width(width).MaxWidth(width).Render(runewidth.Truncate(" "+title, width, "…"))
	}
	left := " " + runewidth.Truncate(title, avail, "…")
	gap := width - runewidth.StringWidth(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return style.Width(width).MaxWidth(width).Render(left + strings.Repeat(" ", gap) + right)
}

func (h *Home) renderStatusBar() string {
	var line string
	switch h.mode {
	case modeNewPane:
		line = PromptStyle.Render(" branch: ") + h.branchInput.View() + "  " + DimStyle.Render("enter create, esc cancel")
	case modeFilter:
		line = PromptStyle.Render(" / ") + h.filterInput.View() + "  " + h.renderMatches()
	case modeFocus:
		title := ""
		if p := h.panes.Selected(); p != nil {
			title = paneLabel(p)
		}
		line = PromptStyle.Render(" FOCUS ") + title + "  " + MenuKey("C-q", "back")
	default:
		line = " " + h.keys.navigationHelp()
	}

	var extra []string
	if h.pending > 0 {
		extra = append(extra, DimStyle.Render("creating worktree..."))
	}
	if h.hooksClosed {
		extra = append(extra, ErrorStyle.Render("hooks offline"))
	}
	if h.err != nil && time.Since(h.errTime) < errorDisplayTime {
		extra = append(extra, ErrorStyle.Render(h.err.Error()))
	} else if h.notice != "" && time.Since(h.noticeTime) < errorDisplayTime {
		extra = append(extra, DimStyle.Render(h.notice))
	}
	if len(extra) > 0 {
		line = strings.Join(extra, "  ") + "  " + line
	}
	return StatusBarStyle.Width(h.width).MaxWidth(h.width).MaxHeight(statusBarHeight).Render(line)
}

func (h *Home) renderMatches() string {
	if len(h.matches) == 0 {
		return DimStyle.Render("no match")
	}
	panes := h.panes.Panes()
	parts := make([]string, 0, len(h.matches))
	for i, idx := range h.matches {
		if i == 5 {
			parts = append(parts, DimStyle.Render(fmt.Sprintf("+%d", len(h.matches)-i)))
			break
		}
		label := paneLabel(panes[idx])
		if i == 0 {
			label = MatchStyle.Render(label)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}
