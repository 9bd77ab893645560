package bpm

import "fmt"

// NodeKind discriminates the node variants an arc can connect.
type NodeKind string

const (
	KindActivity   NodeKind = "ACTIVITY"
	KindGateway    NodeKind = "GATEWAY"
	KindStartEvent NodeKind = "START_EVENT"
	KindEndEvent   NodeKind = "END_EVENT"
)

// PseudoEventID is the reserved id of the virtual start and end events.
const PseudoEventID int64 = 0

// Valid reports whether k is one of the four node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindActivity, KindGateway, KindStartEvent, KindEndEvent:
		return true
	}
	return false
}

// Persisted reports whether nodes of kind k are stored records.
func (k NodeKind) Persisted() bool {
	switch k {
	case KindActivity, KindGateway:
		return true
	case KindStartEvent, KindEndEvent:
		return false
	}
	return false
}

// Endpoint addresses a node by kind and id.
type Endpoint struct {
	Kind NodeKind `json:"kind"`
	ID   int64    `json:"id"`
}

var (
	StartEvent = Endpoint{Kind: KindStartEvent, ID: PseudoEventID}
	EndEvent   = Endpoint{Kind: KindEndEvent, ID: PseudoEventID}
)

// Valid reports whether e has a known kind and an id allowed for that kind.
func (e Endpoint) Valid() bool {
	switch e.Kind {
	case KindActivity, KindGateway:
		return e.ID > 0
	case KindStartEvent, KindEndEvent:
		return e.ID == PseudoEventID
	}
	return false
}

// CanSource reports whether arcs may leave e. The end event only receives.
func (e Endpoint) CanSource() bool { return e.Kind != KindEndEvent }

// CanTarget reports whether arcs may enter e. The start event only emits.
func (e Endpoint) CanTarget() bool { return e.Kind != KindStartEvent }

func (e Endpoint) String() string {
	return fmt.Sprintf("%s#%d", e.Kind, e.ID)
}

// Node is the closed union of everything that can be drawn on a diagram.
// Exactly one of Activity or Gateway is set for persisted kinds; neither is
// set for the pseudo-events.
type Node struct {
	Kind     NodeKind
	Activity *Activity
	Gateway  *Gateway
}

// ActivityNode wraps a.
func ActivityNode(a Activity) Node {
	return Node{Kind: KindActivity, Activity: &a}
}

// GatewayNode wraps g.
func GatewayNode(g Gateway) Node {
	return Node{Kind: KindGateway, Gateway: &g}
}

// StartNode returns the virtual start event.
func StartNode() Node { return Node{Kind: KindStartEvent} }

// EndNode returns the virtual end event.
func EndNode() Node { return Node{Kind: KindEndEvent} }

// Endpoint returns the (kind, id) pair addressing n.
func (n Node) Endpoint() Endpoint {
	switch n.Kind {
	case KindActivity:
		return n.Activity.Endpoint()
	case KindGateway:
		return n.Gateway.Endpoint()
	case KindStartEvent:
		return StartEvent
	case KindEndEvent:
		return EndEvent
	}
	panic(fmt.Sprintf("bpm: unknown node kind %q", n.Kind))
}

// Label is the display text of n.
func (n Node) Label() string {
	switch n.Kind {
	case KindActivity:
		return n.Activity.Name
	case KindGateway:
		return n.Gateway.Name
	case KindStartEvent:
		return "Start"
	case KindEndEvent:
		return "End"
	}
	panic(fmt.Sprintf("bpm: unknown node kind %q", n.Kind))
}

// Active reports whether n may take part in new arcs. Pseudo-events always may.
func (n Node) Active() bool {
	switch n.Kind {
	case KindActivity:
		return n.Activity.Active
	case KindGateway:
		return n.Gateway.Active
	case KindStartEvent, KindEndEvent:
		return true
	}
	panic(fmt.Sprintf("bpm: unknown node kind %q", n.Kind))
}

// Position returns the persisted position. Pseudo-events have none.
func (n Node) Position() (Position, bool) {
	switch n.Kind {
	case KindActivity:
		return n.Activity.Position()
	case KindGateway:
		return n.Gateway.Position()
	case KindStartEvent, KindEndEvent:
		return Position{}, false
	}
	panic(fmt.Sprintf("bpm: unknown node kind %q", n.Kind))
}
