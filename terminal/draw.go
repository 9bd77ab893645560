package terminal

import (
	"github.com/gdamore/tcell/v2"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/editor"
)

var (
	styleNode     = tcell.StyleDefault
	styleInactive = tcell.StyleDefault.Dim(true)
	styleSelected = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorAqua)
	styleArc      = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleBand     = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleStatus   = tcell.StyleDefault.Reverse(true)
	styleFailed   = tcell.StyleDefault.Reverse(true).Foreground(tcell.ColorRed)
)

type frame struct {
	tl, tr, bl, br, h, v rune
}

var (
	squareFrame = frame{'┌', '┐', '└', '┘', '─', '│'}
	roundFrame  = frame{'╭', '╮', '╰', '╯', '─', '│'}
	doubleFrame = frame{'╔', '╗', '╚', '╝', '═', '║'}
)

func frameFor(kind bpm.NodeKind) frame {
	switch kind {
	case bpm.KindActivity:
		return squareFrame
	case bpm.KindGateway:
		return doubleFrame
	case bpm.KindStartEvent, bpm.KindEndEvent:
		return roundFrame
	}
	return squareFrame
}

func (a *App) draw() {
	a.screen.Clear()
	sc := a.surface.Scene()

	for _, arc := range sc.Arcs {
		a.line(arc.Path, styleArc, '·', '▶')
	}
	for _, n := range sc.Nodes {
		a.node(n)
	}
	if !sc.RubberBand.IsEmpty() {
		a.line(sc.RubberBand, styleBand, '∙', '+')
	}

	w, h := a.screen.Size()
	style := styleStatus
	if a.failed {
		style = styleFailed
	}
	for x := 0; x < w; x++ {
		a.screen.SetContent(x, h-1, ' ', nil, style)
	}
	a.text(0, h-1, w, a.statusLine(sc), style)
}

func (a *App) node(n editor.NodeView) {
	style := styleNode
	switch {
	case n.Selected:
		style = styleSelected
	case !n.Active:
		style = styleInactive
	}

	x0, y0 := a.view.Cell(n.Bounds.Min)
	x1, y1 := a.view.Cell(n.Bounds.Max)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	f := frameFor(n.Node.Kind)

	for x := x0 + 1; x < x1; x++ {
		a.screen.SetContent(x, y0, f.h, nil, style)
		a.screen.SetContent(x, y1, f.h, nil, style)
	}
	for y := y0 + 1; y < y1; y++ {
		a.screen.SetContent(x0, y, f.v, nil, style)
		a.screen.SetContent(x1, y, f.v, nil, style)
		for x := x0 + 1; x < x1; x++ {
			a.screen.SetContent(x, y, ' ', nil, style)
		}
	}
	a.screen.SetContent(x0, y0, f.tl, nil, style)
	a.screen.SetContent(x1, y0, f.tr, nil, style)
	a.screen.SetContent(x0, y1, f.bl, nil, style)
	a.screen.SetContent(x1, y1, f.br, nil, style)

	a.text(x0+1, (y0+y1)/2, x1-x0-1, n.Label, style)

	if n.HasPort {
		px, py := a.view.Cell(portCenter(n.Port))
		a.screen.SetContent(px, py, '●', nil, style)
	}
}

func portCenter(r editor.Rect) bpm.Position {
	return bpm.Position{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// text writes s from (x, y), clipped to width cells.
func (a *App) text(x, y, width int, s string, style tcell.Style) {
	i := 0
	for _, r := range s {
		if i >= width {
			return
		}
		a.screen.SetContent(x+i, y, r, nil, style)
		i++
	}
}

// line rasterises a path between cell centres, finishing with head.
func (a *App) line(p editor.Path, style tcell.Style, body, head rune) {
	for i := 1; i < len(p.Points); i++ {
		x0, y0 := a.view.Cell(p.Points[i-1])
		x1, y1 := a.view.Cell(p.Points[i])
		for _, c := range bresenham(x0, y0, x1, y1) {
			a.screen.SetContent(c[0], c[1], body, nil, style)
		}
	}
	x, y := a.view.Cell(p.End())
	a.screen.SetContent(x, y, head, nil, style)
}

func bresenham(x0, y0, x1, y1 int) [][2]int {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	var cells [][2]int
	err := dx + dy
	for {
		cells = append(cells, [2]int{x0, y0})
		if x0 == x1 && y0 == y1 {
			return cells
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
