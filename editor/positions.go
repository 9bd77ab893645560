package editor

import (
	"math/rand/v2"
	"sync"

	"github.com/meikuraledutech/bpm"
)

// Placement bounds the positions synthesised for nodes that have none.
// Synthesised positions fall in [Origin, Origin+Spread] on both axes.
// Nothing prevents two nodes from landing on top of each other.
type Placement struct {
	Origin bpm.Position
	Spread bpm.Position
}

// DefaultPlacement is used when no placement is configured.
var DefaultPlacement = Placement{
	Origin: bpm.Position{X: 100, Y: 100},
	Spread: bpm.Position{X: 400, Y: 300},
}

// Contains reports whether p lies within the placement bounds.
func (pl Placement) Contains(p bpm.Position) bool {
	return p.X >= pl.Origin.X && p.X <= pl.Origin.X+pl.Spread.X &&
		p.Y >= pl.Origin.Y && p.Y <= pl.Origin.Y+pl.Spread.Y
}

func (pl Placement) random(r *rand.Rand) bpm.Position {
	return bpm.Position{
		X: pl.Origin.X + r.Float64()*pl.Spread.X,
		Y: pl.Origin.Y + r.Float64()*pl.Spread.Y,
	}
}

// Default positions of the pseudo-events.
var (
	DefaultStartAt = bpm.Position{X: 20, Y: 200}
	DefaultEndAt   = bpm.Position{X: 900, Y: 200}
)

// Positions holds the current diagram position of every rendered node.
//
// Positions is owned by the UI loop. Only Synthesize may be called from
// other goroutines.
type Positions struct {
	placement Placement

	rndMu sync.Mutex
	rnd   *rand.Rand

	at     map[bpm.Endpoint]bpm.Position
	pinned map[bpm.Endpoint]bpm.Position

	listeners map[int]func(bpm.Endpoint)
	nextID    int
}

// NewPositions returns an empty store. seed makes synthesised placement
// reproducible.
func NewPositions(placement Placement, seed uint64) *Positions {
	return &Positions{
		placement: placement,
		rnd:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		at:        make(map[bpm.Endpoint]bpm.Position),
		pinned: map[bpm.Endpoint]bpm.Position{
			bpm.StartEvent: DefaultStartAt,
			bpm.EndEvent:   DefaultEndAt,
		},
		listeners: make(map[int]func(bpm.Endpoint)),
	}
}

// Placement returns the bounds used by Synthesize.
func (p *Positions) Placement() Placement { return p.placement }

// Synthesize returns a random position within the placement bounds.
// It is safe for concurrent use.
func (p *Positions) Synthesize() bpm.Position {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return p.placement.random(p.rnd)
}

// Subscribe registers fn to be called with the endpoint of every node whose
// position changes. The returned function removes the subscription.
func (p *Positions) Subscribe(fn func(bpm.Endpoint)) func() {
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() { delete(p.listeners, id) }
}

// Position returns the current position of ep.
func (p *Positions) Position(ep bpm.Endpoint) (bpm.Position, bool) {
	if pos, ok := p.pinned[ep]; ok {
		return pos, true
	}
	pos, ok := p.at[ep]
	return pos, ok
}

// Pin fixes the position of a pseudo-event.
func (p *Positions) Pin(ep bpm.Endpoint, pos bpm.Position) {
	if ep.Kind.Persisted() {
		return
	}
	p.pinned[ep] = pos
	p.notify(ep)
}

// Set moves a known activity or gateway. It reports false for unknown
// nodes and pseudo-events.
func (p *Positions) Set(ep bpm.Endpoint, pos bpm.Position) bool {
	if _, ok := p.at[ep]; !ok {
		return false
	}
	p.at[ep] = pos
	p.notify(ep)
	return true
}

// Sync reconciles the positions of one node kind with a freshly listed
// collection. Known nodes keep their local position, new nodes take their
// persisted position or a synthesised one, vanished nodes are dropped.
func (p *Positions) Sync(kind bpm.NodeKind, nodes []bpm.Node) {
	seen := make(map[bpm.Endpoint]bool, len(nodes))
	for _, n := range nodes {
		ep := n.Endpoint()
		if ep.Kind != kind {
			continue
		}
		seen[ep] = true
		if _, ok := p.at[ep]; ok {
			continue
		}
		pos, ok := n.Position()
		if !ok {
			pos = p.Synthesize()
		}
		p.at[ep] = pos
		p.notify(ep)
	}
	for ep := range p.at {
		if ep.Kind == kind && !seen[ep] {
			delete(p.at, ep)
		}
	}
}

func (p *Positions) notify(ep bpm.Endpoint) {
	for _, fn := range p.listeners {
		fn(ep)
	}
}
