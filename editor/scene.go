package editor

import "github.com/meikuraledutech/bpm"

// NodeView is one node as it should be drawn.
type NodeView struct {
	Node     bpm.Node
	Label    string
	Bounds   Rect
	Port     Rect
	HasPort  bool
	Active   bool
	Selected bool
}

// ArcView is one routed connector.
type ArcView struct {
	Arc  bpm.Arc
	Path Path
}

// Scene is a snapshot of everything a renderer needs.
type Scene struct {
	Title    string
	ReadOnly bool
	Mode     GestureState
	Nodes    []NodeView
	Arcs     []ArcView
	// RubberBand runs from the origin's anchor to the cursor while drawing.
	RubberBand Path
}

// Scene returns the current snapshot. Inactive nodes are included so they
// can be drawn dimmed; only active arcs with a resolvable path are.
func (s *Surface) Scene() Scene {
	sc := Scene{
		ReadOnly: !s.session.CanEdit(),
		Mode:     s.gesture.State(),
		Nodes:    []NodeView{},
		Arcs:     []ArcView{},
	}
	if p, ok := s.graph.Process(); ok {
		sc.Title = p.Name
	}

	for _, n := range s.graph.Nodes() {
		ep := n.Endpoint()
		pos, ok := s.positions.Position(ep)
		if !ok {
			continue
		}
		sc.Nodes = append(sc.Nodes, NodeView{
			Node:     n,
			Label:    n.Label(),
			Bounds:   Bounds(n.Kind, pos),
			Port:     Port(n.Kind, pos),
			HasPort:  n.Active() && ep.CanSource(),
			Active:   n.Active(),
			Selected: s.selected != nil && *s.selected == ep,
		})
	}

	for _, r := range s.router.All() {
		if r.Path.IsEmpty() {
			continue
		}
		sc.Arcs = append(sc.Arcs, ArcView{Arc: r.Arc, Path: r.Path})
	}

	if origin, ok := s.gesture.Origin(); ok {
		cursor, _ := s.gesture.Cursor()
		if from, ok := Anchor(origin, s.positions); ok {
			sc.RubberBand = Path{Points: []bpm.Position{from, cursor}}
		}
	}
	return sc
}
