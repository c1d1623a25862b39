package session

import "math"

// Collection is the ordered set of panes, the selection and the layout
// mode. It owns every pane; only the render loop touches it.
type Collection struct {
	panes    []*Pane
	selected int
	layout   LayoutMode
}

// NewCollection returns an empty collection with no selection.
func NewCollection() *Collection {
	return &Collection{selected: -1}
}

func (c *Collection) Len() int { return len(c.panes) }

// Panes returns the panes in display order. The slice must not be modified.
func (c *Collection) Panes() []*Pane { return c.panes }

// At returns the pane at i, or nil when out of range.
func (c *Collection) At(i int) *Pane {
	if i < 0 || i >= len(c.panes) {
		return nil
	}
	return c.panes[i]
}

// SelectedIndex is -1 when the collection is empty.
func (c *Collection) SelectedIndex() int { return c.selected }

// Selected returns the selected pane, or nil when empty.
func (c *Collection) Selected() *Pane { return c.At(c.selected) }

// Select moves the selection; out-of-range indexes are ignored.
func (c *Collection) Select(i int) bool {
	if i < 0 || i >= len(c.panes) {
		return false
	}
	c.selected = i
	return true
}

// SelectNext and SelectPrev wrap around.
func (c *Collection) SelectNext() {
	if n := len(c.panes); n > 0 {
		c.selected = (c.selected + 1) % n
	}
}

func (c *Collection) SelectPrev() {
	if n := len(c.panes); n > 0 {
		c.selected = (c.selected - 1 + n) % n
	}
}

// Add appends a pane and selects it.
func (c *Collection) Add(p *Pane) {
	c.panes = append(c.panes, p)
	c.selected = len(c.panes) - 1
}

// Remove drops the pane with the given id and returns it. The selection
// stays on the same pane when possible, otherwise on its nearest neighbour.
func (c *Collection) Remove(id string) *Pane {
	idx := c.indexOf(id)
	if idx < 0 {
		return nil
	}
	p := c.panes[idx]
	copy(c.panes[idx:], c.panes[idx+1:])
	c.panes[len(c.panes)-1] = nil
	c.panes = c.panes[:len(c.panes)-1]

	switch {
	case len(c.panes) == 0:
		c.selected = -1
	case idx < c.selected:
		c.selected--
	case c.selected >= len(c.panes):
		c.selected = len(c.panes) - 1
	}
	return p
}

func (c *Collection) indexOf(id string) int {
	for i, p := range c.panes {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// FindByID returns the pane with the given id, or nil.
func (c *Collection) FindByID(id string) *Pane {
	return c.At(c.indexOf(id))
}

// FindByTask resolves a hook's worktree id. One pane per task is assumed.
func (c *Collection) FindByTask(taskID string) *Pane {
	if taskID == "" {
		return nil
	}
	for _, p := range c.panes {
		if p.TaskID == taskID {
			return p
		}
	}
	return nil
}

// FindByWorkDir returns the pane running in dir, or nil.
func (c *Collection) FindByWorkDir(dir string) *Pane {
	for _, p := range c.panes {
		if p.WorkDir == dir {
			return p
		}
	}
	return nil
}

func (c *Collection) Layout() LayoutMode { return c.layout }

func (c *Collection) SetLayout(m LayoutMode) { c.layout = m }

func (c *Collection) CycleLayout() LayoutMode {
	c.layout = c.layout.Next()
	return c.layout
}

// Rect is a region of the dashboard in cells.
type Rect struct {
	X, Y, W, H int
}

// Placement pairs a visible pane with its region.
type Placement struct {
	Pane *Pane
	Rect Rect
}

// Arrange splits a width x height area between the visible panes. Every
// rect is at least 1x1. Single shows only the selected pane.
func (c *Collection) Arrange(width, height int) []Placement {
	n := len(c.panes)
	if n == 0 {
		return nil
	}
	height, width = clampGeometry(height, width)

	switch c.layout {
	case LayoutHorizontalSplit:
		out := make([]Placement, n)
		for i, h := range split(height, n) {
			out[i] = Placement{Pane: c.panes[i], Rect: Rect{X: 0, Y: h.start, W: width, H: h.size}}
		}
		return out
	case LayoutVerticalSplit:
		out := make([]Placement, n)
		for i, w := range split(width, n) {
			out[i] = Placement{Pane: c.panes[i], Rect: Rect{X: w.start, Y: 0, W: w.size, H: height}}
		}
		return out
	case LayoutGrid:
		cols := int(math.Ceil(math.Sqrt(float64(n))))
		rows := (n + cols - 1) / cols
		colSpans := split(width, cols)
		rowSpans := split(height, rows)
		out := make([]Placement, n)
		for i := range c.panes {
			r, col := i/cols, i%cols
			out[i] = Placement{Pane: c.panes[i], Rect: Rect{
				X: colSpans[col].start, Y: rowSpans[r].start,
				W: colSpans[col].size, H: rowSpans[r].size,
			}}
		}
		return out
	default:
		p := c.Selected()
		if p == nil {
			return nil
		}
		return []Placement{{Pane: p, Rect: Rect{W: width, H: height}}}
	}
}

type span struct{ start, size int }

// split divides total into n spans, handing the remainder to the first
// spans. Spans never shrink below one cell, so they may overflow total.
func split(total, n int) []span {
	out := make([]span, n)
	base, extra := total/n, total%n
	pos := 0
	for i := range out {
		size := base
		if i < extra {
			size++
		}
		if size < 1 {
			size = 1
		}
		out[i] = span{start: pos, size: size}
		pos += size
	}
	return out
}
