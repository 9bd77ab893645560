package editor

import (
	"fmt"

	"github.com/meikuraledutech/bpm"
)

// Family names one of the collections held by a Graph.
type Family int

const (
	FamilyActivities Family = iota
	FamilyGateways
	FamilyArcs
	// FamilyContext covers the process record and the tenant's roles.
	FamilyContext
)

func (f Family) String() string {
	switch f {
	case FamilyActivities:
		return "activity"
	case FamilyGateways:
		return "gateway"
	case FamilyArcs:
		return "arc"
	case FamilyContext:
		return "context"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Change describes one mutation of a Graph. Appended is set only when a
// single arc was appended; otherwise the whole family was replaced.
type Change struct {
	Family   Family
	Appended *bpm.Arc
}

// Graph is the in-memory copy of one process: its activities, gateways and
// arcs as last fetched, plus the process record and the tenant's roles.
//
// A Graph is owned by the UI loop and is not safe for concurrent use.
// Collections are only ever replaced wholesale, never patched in place.
type Graph struct {
	processID int64

	process    *bpm.Process
	roles      []bpm.Role
	activities []bpm.Activity
	gateways   []bpm.Gateway
	arcs       []bpm.Arc

	listeners map[int]func(Change)
	nextID    int
}

// NewGraph returns an empty graph for processID.
func NewGraph(processID int64) *Graph {
	return &Graph{
		processID: processID,
		listeners: make(map[int]func(Change)),
	}
}

// ProcessID returns the process this graph belongs to.
func (g *Graph) ProcessID() int64 { return g.processID }

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription.
func (g *Graph) Subscribe(fn func(Change)) func() {
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	return func() { delete(g.listeners, id) }
}

func (g *Graph) emit(c Change) {
	for _, fn := range g.listeners {
		fn(c)
	}
}

// Process returns the loaded process record, if any.
func (g *Graph) Process() (bpm.Process, bool) {
	if g.process == nil {
		return bpm.Process{}, false
	}
	return *g.process, true
}

// SetContext replaces the process record and the role list.
func (g *Graph) SetContext(p bpm.Process, roles []bpm.Role) {
	p.Activities, p.Gateways, p.Arcs = nil, nil, nil
	g.process = &p
	g.roles = append([]bpm.Role(nil), roles...)
	g.emit(Change{Family: FamilyContext})
}

// ActiveRoles returns the roles an activity may be assigned to.
func (g *Graph) ActiveRoles() []bpm.Role {
	out := make([]bpm.Role, 0, len(g.roles))
	for _, r := range g.roles {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Activities returns a copy of all activities, active or not.
func (g *Graph) Activities() []bpm.Activity {
	return append([]bpm.Activity(nil), g.activities...)
}

// Gateways returns a copy of all gateways, active or not.
func (g *Graph) Gateways() []bpm.Gateway {
	return append([]bpm.Gateway(nil), g.gateways...)
}

// Arcs returns a copy of all arcs, active or not.
func (g *Graph) Arcs() []bpm.Arc {
	return append([]bpm.Arc(nil), g.arcs...)
}

// ActiveArcs returns the arcs drawn on the surface.
func (g *Graph) ActiveArcs() []bpm.Arc {
	out := make([]bpm.Arc, 0, len(g.arcs))
	for _, a := range g.arcs {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// ReplaceActivities swaps in a freshly listed activity collection.
func (g *Graph) ReplaceActivities(list []bpm.Activity) {
	g.activities = append([]bpm.Activity(nil), list...)
	g.emit(Change{Family: FamilyActivities})
}

// ReplaceGateways swaps in a freshly listed gateway collection.
func (g *Graph) ReplaceGateways(list []bpm.Gateway) {
	g.gateways = append([]bpm.Gateway(nil), list...)
	g.emit(Change{Family: FamilyGateways})
}

// ReplaceArcs swaps in a freshly listed arc collection.
func (g *Graph) ReplaceArcs(list []bpm.Arc) {
	g.arcs = append([]bpm.Arc(nil), list...)
	g.emit(Change{Family: FamilyArcs})
}

// AppendArc adds a just-created arc ahead of the next arc refresh.
func (g *Graph) AppendArc(a bpm.Arc) {
	g.arcs = append(g.arcs[:len(g.arcs):len(g.arcs)], a)
	g.emit(Change{Family: FamilyArcs, Appended: &a})
}

// Lookup resolves an endpoint to its node. Pseudo-events always resolve.
// Inactive activities and gateways resolve too; use LookupActive for
// anything interactive.
func (g *Graph) Lookup(ep bpm.Endpoint) (bpm.Node, bool) {
	switch ep.Kind {
	case bpm.KindActivity:
		for _, a := range g.activities {
			if a.ID == ep.ID {
				return bpm.ActivityNode(a), true
			}
		}
	case bpm.KindGateway:
		for _, gw := range g.gateways {
			if gw.ID == ep.ID {
				return bpm.GatewayNode(gw), true
			}
		}
	case bpm.KindStartEvent:
		if ep == bpm.StartEvent {
			return bpm.StartNode(), true
		}
	case bpm.KindEndEvent:
		if ep == bpm.EndEvent {
			return bpm.EndNode(), true
		}
	}
	return bpm.Node{}, false
}

// LookupActive is Lookup restricted to nodes that may take part in new arcs.
func (g *Graph) LookupActive(ep bpm.Endpoint) (bpm.Node, bool) {
	n, ok := g.Lookup(ep)
	if !ok || !n.Active() {
		return bpm.Node{}, false
	}
	return n, true
}

// Nodes returns every node in drawing order: start, activities, gateways,
// end.
func (g *Graph) Nodes() []bpm.Node {
	nodes := make([]bpm.Node, 0, len(g.activities)+len(g.gateways)+2)
	nodes = append(nodes, bpm.StartNode())
	for _, a := range g.activities {
		nodes = append(nodes, bpm.ActivityNode(a))
	}
	for _, gw := range g.gateways {
		nodes = append(nodes, bpm.GatewayNode(gw))
	}
	return append(nodes, bpm.EndNode())
}

// ActiveNodes returns the nodes offered as ports and drag targets.
func (g *Graph) ActiveNodes() []bpm.Node {
	all := g.Nodes()
	out := all[:0]
	for _, n := range all {
		if n.Active() {
			out = append(out, n)
		}
	}
	return out
}
