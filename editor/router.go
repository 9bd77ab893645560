package editor

import (
	"fmt"

	"github.com/meikuraledutech/bpm"
)

// Anchor offsets from a node's position to the point its connectors attach.
var (
	ActivityAnchor = bpm.Position{X: 60, Y: 30}
	EventAnchor    = bpm.Position{X: 25, Y: 25}
)

// AnchorOffset returns the connector anchor offset for a node kind.
// Gateways share the pseudo-events' offset.
func AnchorOffset(kind bpm.NodeKind) bpm.Position {
	switch kind {
	case bpm.KindActivity:
		return ActivityAnchor
	case bpm.KindGateway, bpm.KindStartEvent, bpm.KindEndEvent:
		return EventAnchor
	}
	panic(fmt.Sprintf("editor: unknown node kind %q", kind))
}

// Path is a renderable connector polyline.
type Path struct {
	Points []bpm.Position
}

// IsEmpty reports whether there is nothing to draw.
func (p Path) IsEmpty() bool { return len(p.Points) < 2 }

// Start returns the first point. Callers check IsEmpty first.
func (p Path) Start() bpm.Position { return p.Points[0] }

// End returns the last point. Callers check IsEmpty first.
func (p Path) End() bpm.Position { return p.Points[len(p.Points)-1] }

// Locator resolves the current position of a node.
type Locator interface {
	Position(ep bpm.Endpoint) (bpm.Position, bool)
}

// Anchor returns the connector anchor of ep.
func Anchor(ep bpm.Endpoint, loc Locator) (bpm.Position, bool) {
	pos, ok := loc.Position(ep)
	if !ok || !ep.Kind.Valid() {
		return bpm.Position{}, false
	}
	return pos.Add(AnchorOffset(ep.Kind)), true
}

// Route returns the straight connector between the anchors of an arc's
// endpoints, or an empty path if either endpoint cannot be located.
func Route(arc bpm.Arc, loc Locator) Path {
	from, ok := Anchor(arc.Source(), loc)
	if !ok {
		return Path{}
	}
	to, ok := Anchor(arc.Target(), loc)
	if !ok {
		return Path{}
	}
	return Path{Points: []bpm.Position{from, to}}
}

// Router keeps the routed path of every drawn arc current.
// Paths are recomputed from the Locator whenever a node moves, so a cached
// path never outlives the position it was computed from.
type Router struct {
	loc    Locator
	arcs   map[int64]bpm.Arc
	order  []int64
	paths  map[int64]Path
	byNode map[bpm.Endpoint][]int64
}

// NewRouter returns a Router reading positions from loc.
func NewRouter(loc Locator) *Router {
	return &Router{
		loc:    loc,
		arcs:   make(map[int64]bpm.Arc),
		paths:  make(map[int64]Path),
		byNode: make(map[bpm.Endpoint][]int64),
	}
}

// Reset replaces the routed arc set and recomputes every path.
func (r *Router) Reset(arcs []bpm.Arc) {
	r.arcs = make(map[int64]bpm.Arc, len(arcs))
	r.paths = make(map[int64]Path, len(arcs))
	r.byNode = make(map[bpm.Endpoint][]int64)
	r.order = r.order[:0]
	for _, a := range arcs {
		r.add(a)
	}
}

// Add routes one more arc.
func (r *Router) Add(a bpm.Arc) {
	if _, ok := r.arcs[a.ID]; ok {
		return
	}
	r.add(a)
}

func (r *Router) add(a bpm.Arc) {
	r.arcs[a.ID] = a
	r.order = append(r.order, a.ID)
	r.paths[a.ID] = Route(a, r.loc)
	r.byNode[a.Source()] = append(r.byNode[a.Source()], a.ID)
	if a.Target() != a.Source() {
		r.byNode[a.Target()] = append(r.byNode[a.Target()], a.ID)
	}
}

// Moved recomputes the paths of every arc touching ep.
func (r *Router) Moved(ep bpm.Endpoint) {
	for _, id := range r.byNode[ep] {
		r.paths[id] = Route(r.arcs[id], r.loc)
	}
}

// Path returns the current path of an arc.
func (r *Router) Path(arcID int64) Path {
	return r.paths[arcID]
}

// Routed is an arc together with its current path.
type Routed struct {
	Arc  bpm.Arc
	Path Path
}

// All returns every routed arc in insertion order, empty paths included.
func (r *Router) All() []Routed {
	out := make([]Routed, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Routed{Arc: r.arcs[id], Path: r.paths[id]})
	}
	return out
}
