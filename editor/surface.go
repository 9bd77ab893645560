package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meikuraledutech/bpm"
)

// Session is the editing context chosen by the host application.
type Session interface {
	TenantID() int64
	ProcessID() int64
	CanEdit() bool
}

// StaticSession is a Session with fixed values.
type StaticSession struct {
	Tenant   int64
	Process  int64
	Editable bool
}

func (s StaticSession) TenantID() int64  { return s.Tenant }
func (s StaticSession) ProcessID() int64 { return s.Process }
func (s StaticSession) CanEdit() bool    { return s.Editable }

// NoticeLevel grades a Notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a message for the user, such as a rejected operation.
type Notice struct {
	Level   NoticeLevel
	Op      string
	Message string
	Err     error
}

// Notifier receives notices on the UI loop.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Message returns the user-facing text for a failed operation. Store
// rejections carry their own message; transport failures get a generic one.
func Message(err error) string {
	var rej *bpm.RejectionError
	if !errors.As(err, &rej) && errors.Is(err, bpm.ErrUnavailable) {
		return "The process store could not be reached. Try again."
	}
	return bpm.Explain(err)
}

// Node geometry in diagram units, measured from a node's position.
var (
	ActivitySize = bpm.Position{X: 120, Y: 60}
	EventSize    = bpm.Position{X: 50, Y: 50}
)

// PortSize is the side of the square connection port on a node's right edge.
const PortSize = 10.0

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min, Max bpm.Position
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p bpm.Position) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// NodeSize returns the drawn size of a node kind.
func NodeSize(kind bpm.NodeKind) bpm.Position {
	switch kind {
	case bpm.KindActivity:
		return ActivitySize
	case bpm.KindGateway, bpm.KindStartEvent, bpm.KindEndEvent:
		return EventSize
	}
	panic(fmt.Sprintf("editor: unknown node kind %q", kind))
}

// Bounds returns the body of a node of kind drawn at pos.
func Bounds(kind bpm.NodeKind, pos bpm.Position) Rect {
	return Rect{Min: pos, Max: pos.Add(NodeSize(kind))}
}

// Port returns the connection port of a node of kind drawn at pos.
func Port(kind bpm.NodeKind, pos bpm.Position) Rect {
	size := NodeSize(kind)
	mid := pos.Add(bpm.Position{X: size.X, Y: size.Y / 2})
	half := bpm.Position{X: PortSize / 2, Y: PortSize / 2}
	return Rect{Min: mid.Sub(half), Max: mid.Add(half)}
}

// SurfaceOptions configures NewSurface. Zero values select defaults.
type SurfaceOptions struct {
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *Metrics

	Placement Placement
	Seed      uint64
	StartAt   *bpm.Position
	EndAt     *bpm.Position

	// Timeout bounds each dispatched operation. Zero means no limit.
	Timeout time.Duration

	// OnSelect is called on the UI loop whenever a node is selected.
	OnSelect func(bpm.Node)
}

// mailbox queues model updates posted by worker goroutines until the UI
// loop pumps them.
type mailbox struct {
	mu    sync.Mutex
	queue []func()
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) Apply(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

type drag struct {
	node  bpm.Node
	grab  bpm.Position
	moved bool
}

// Surface is the interactive diagram of one process.
//
// All methods except Ready and Wait must be called from a single UI loop.
// Remote operations run on their own goroutines; their results are queued
// and applied by Pump.
type Surface struct {
	session   Session
	graph     *Graph
	positions *Positions
	router    *Router
	orch      *Orchestrator
	gesture   Gesture

	notifier Notifier
	logger   *zap.Logger
	onSelect func(bpm.Node)
	timeout  time.Duration

	mail    *mailbox
	pending sync.WaitGroup

	drag     *drag
	selected *bpm.Endpoint
}

// NewSurface returns an empty surface for the session's process. Call Load
// to fetch its content.
func NewSurface(store bpm.Store, session Session, opts SurfaceOptions) *Surface {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notice) {})
	}
	if opts.Placement == (Placement{}) {
		opts.Placement = DefaultPlacement
	}

	s := &Surface{
		session:  session,
		graph:    NewGraph(session.ProcessID()),
		notifier: opts.Notifier,
		logger:   opts.Logger,
		onSelect: opts.OnSelect,
		timeout:  opts.Timeout,
		mail:     newMailbox(),
	}
	s.positions = NewPositions(opts.Placement, opts.Seed)
	s.router = NewRouter(s.positions)
	s.orch = NewOrchestrator(store, session.TenantID(), s.graph, s.positions, OrchestratorOptions{
		Applier: s.mail,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})

	s.graph.Subscribe(s.graphChanged)
	s.positions.Subscribe(s.router.Moved)

	if opts.StartAt != nil {
		s.positions.Pin(bpm.StartEvent, *opts.StartAt)
	}
	if opts.EndAt != nil {
		s.positions.Pin(bpm.EndEvent, *opts.EndAt)
	}
	return s
}

func (s *Surface) graphChanged(c Change) {
	switch c.Family {
	case FamilyArcs:
		if c.Appended != nil {
			if c.Appended.Active {
				s.router.Add(*c.Appended)
			}
			return
		}
		s.router.Reset(s.graph.ActiveArcs())
	case FamilyActivities, FamilyGateways:
		s.router.Reset(s.graph.ActiveArcs())
		if s.selected != nil {
			if _, ok := s.graph.Lookup(*s.selected); !ok {
				s.selected = nil
			}
		}
	}
}

// Graph returns the surface's model.
func (s *Surface) Graph() *Graph { return s.graph }

// Positions returns the node positions of the surface.
func (s *Surface) Positions() *Positions { return s.positions }

// Router returns the connector router of the surface.
func (s *Surface) Router() *Router { return s.router }

// Orchestrator returns the orchestrator behind the surface, for forms that
// edit element fields directly. Its graph updates are queued like the
// surface's own.
func (s *Surface) Orchestrator() *Orchestrator { return s.orch }

// Mode returns the state of the arc-drawing gesture.
func (s *Surface) Mode() GestureState { return s.gesture.State() }

// ReadOnly reports whether editing is disabled for the session.
func (s *Surface) ReadOnly() bool { return !s.session.CanEdit() }

// Ready is signalled whenever queued updates are waiting for Pump.
func (s *Surface) Ready() <-chan struct{} { return s.mail.ready }

// Pump applies queued updates and returns how many ran.
func (s *Surface) Pump() int {
	n := 0
	for {
		q := s.mail.drain()
		if len(q) == 0 {
			return n
		}
		for _, fn := range q {
			fn()
		}
		n += len(q)
	}
}

// Wait blocks until every dispatched operation has finished and then pumps.
func (s *Surface) Wait() {
	s.pending.Wait()
	s.Pump()
}

func (s *Surface) dispatch(op string, fn func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		if err := fn(ctx); err != nil {
			s.mail.Apply(func() { s.fail(op, err) })
		}
	}()
}

func (s *Surface) fail(op string, err error) {
	s.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
	s.notifier.Notify(Notice{Level: NoticeError, Op: op, Message: Message(err), Err: err})
}

func (s *Surface) editable(op string) bool {
	if s.session.CanEdit() {
		return true
	}
	s.notifier.Notify(Notice{Level: NoticeInfo, Op: op, Message: "This process is open read-only."})
	return false
}

// Load fetches the process and all of its elements.
func (s *Surface) Load() {
	s.dispatch("load", s.orch.Load)
}

// Refresh re-fetches everything, keeping local positions of known nodes.
func (s *Surface) Refresh() {
	s.dispatch("refresh", s.orch.Load)
}

// ── Pointer ─────────────────────────────────────────────────────────

// nodeAt returns the topmost active node whose body or port covers p.
func (s *Surface) nodeAt(p bpm.Position) (bpm.Node, bool) {
	nodes := s.graph.ActiveNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		pos, ok := s.positions.Position(n.Endpoint())
		if !ok {
			continue
		}
		if Bounds(n.Kind, pos).Contains(p) || Port(n.Kind, pos).Contains(p) {
			return n, true
		}
	}
	return bpm.Node{}, false
}

// portAt returns the topmost active node whose port covers p. The end event
// has no port.
func (s *Surface) portAt(p bpm.Position) (bpm.Node, bool) {
	nodes := s.graph.ActiveNodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if !n.Endpoint().CanSource() {
			continue
		}
		pos, ok := s.positions.Position(n.Endpoint())
		if ok && Port(n.Kind, pos).Contains(p) {
			return n, true
		}
	}
	return bpm.Node{}, false
}

// PointerDown starts drawing from a port, or selects and starts dragging a
// node body. A press on empty canvas clears the selection. Presses while
// drawing are ignored.
func (s *Surface) PointerDown(at bpm.Position) {
	if s.gesture.State() == Drawing {
		return
	}
	if s.session.CanEdit() {
		if n, ok := s.portAt(at); ok {
			s.gesture.Begin(n.Endpoint(), at)
			return
		}
	}
	n, ok := s.nodeAt(at)
	if !ok {
		s.selected = nil
		return
	}
	s.selectNode(n)
	if !s.session.CanEdit() || !n.Kind.Persisted() {
		return
	}
	pos, _ := s.positions.Position(n.Endpoint())
	s.drag = &drag{node: n, grab: at.Sub(pos)}
}

// PointerMove follows the pointer with the rubber band or the dragged node.
func (s *Surface) PointerMove(at bpm.Position) {
	if s.gesture.State() == Drawing {
		s.gesture.Move(at)
		return
	}
	if s.drag != nil {
		if s.positions.Set(s.drag.node.Endpoint(), at.Sub(s.drag.grab)) {
			s.drag.moved = true
		}
	}
}

// PointerUp commits the gesture in progress. Releasing a drawn line over a
// different node that accepts incoming arcs creates an arc; releasing a dragged node persists its
// position once.
func (s *Surface) PointerUp(at bpm.Position) {
	if s.gesture.State() == Drawing {
		var target *bpm.Endpoint
		if n, ok := s.nodeAt(at); ok && n.Endpoint().CanTarget() {
			ep := n.Endpoint()
			target = &ep
		}
		c, ok := s.gesture.Release(target)
		if !ok {
			return
		}
		arc := bpm.NewArc(s.graph.ProcessID(), c.Source, c.Target)
		s.dispatch("create arc", func(ctx context.Context) error {
			_, err := s.orch.CreateArc(ctx, arc)
			return err
		})
		return
	}

	d := s.drag
	s.drag = nil
	if d == nil || !d.moved {
		return
	}
	ep := d.node.Endpoint()
	node := d.node
	if n, ok := s.graph.Lookup(ep); ok {
		node = n
	}
	pos, ok := s.positions.Position(ep)
	if !ok {
		return
	}
	s.dispatch("move "+string(ep.Kind), func(ctx context.Context) error {
		return s.orch.MoveNode(ctx, node, pos)
	})
}

// Cancel abandons the arc being drawn. Drags are not affected.
func (s *Surface) Cancel() {
	s.gesture.Cancel()
}

// ── Selection and commands ──────────────────────────────────────────

func (s *Surface) selectNode(n bpm.Node) {
	ep := n.Endpoint()
	s.selected = &ep
	if s.onSelect != nil {
		s.onSelect(n)
	}
}

// Select selects the node addressed by ep. Unlike pointer presses it
// reaches inactive nodes, so they can be reactivated or purged.
func (s *Surface) Select(ep bpm.Endpoint) bool {
	n, ok := s.graph.Lookup(ep)
	if !ok {
		return false
	}
	s.selectNode(n)
	return true
}

// SelectNext moves the selection to the next node in drawing order,
// wrapping around.
func (s *Surface) SelectNext() {
	nodes := s.graph.Nodes()
	next := 0
	if s.selected != nil {
		for i, n := range nodes {
			if n.Endpoint() == *s.selected {
				next = (i + 1) % len(nodes)
				break
			}
		}
	}
	s.selectNode(nodes[next])
}

// Selected returns the selected node.
func (s *Surface) Selected() (bpm.Node, bool) {
	if s.selected == nil {
		return bpm.Node{}, false
	}
	return s.graph.Lookup(*s.selected)
}

// AddActivity creates an activity at a synthesised position.
func (s *Surface) AddActivity(name string, kind bpm.ActivityKind) {
	if !s.editable("create activity") {
		return
	}
	a := bpm.Activity{Name: name, Kind: kind, Active: true}
	s.dispatch("create activity", func(ctx context.Context) error {
		_, err := s.orch.CreateActivity(ctx, a)
		return err
	})
}

// AddGateway creates a gateway at a synthesised position.
func (s *Surface) AddGateway(name string, kind bpm.GatewayKind) {
	if !s.editable("create gateway") {
		return
	}
	g := bpm.Gateway{Name: name, Kind: kind, Active: true}
	s.dispatch("create gateway", func(ctx context.Context) error {
		_, err := s.orch.CreateGateway(ctx, g)
		return err
	})
}

// Delete soft-deletes the activity or gateway addressed by ep.
func (s *Surface) Delete(ep bpm.Endpoint) {
	s.nodeOp("delete", ep,
		func(ctx context.Context) error { return s.orch.DeleteActivity(ctx, ep.ID) },
		func(ctx context.Context) error { return s.orch.DeleteGateway(ctx, ep.ID) })
}

// Reactivate restores the activity or gateway addressed by ep.
func (s *Surface) Reactivate(ep bpm.Endpoint) {
	s.nodeOp("reactivate", ep,
		func(ctx context.Context) error {
			_, err := s.orch.ReactivateActivity(ctx, ep.ID)
			return err
		},
		func(ctx context.Context) error {
			_, err := s.orch.ReactivateGateway(ctx, ep.ID)
			return err
		})
}

// Purge permanently deletes the activity or gateway addressed by ep.
func (s *Surface) Purge(ep bpm.Endpoint) {
	s.nodeOp("purge", ep,
		func(ctx context.Context) error { return s.orch.PurgeActivity(ctx, ep.ID) },
		func(ctx context.Context) error { return s.orch.PurgeGateway(ctx, ep.ID) })
}

func (s *Surface) nodeOp(verb string, ep bpm.Endpoint, activity, gateway func(ctx context.Context) error) {
	op := verb + " " + string(ep.Kind)
	if !s.editable(op) {
		return
	}
	switch ep.Kind {
	case bpm.KindActivity:
		s.dispatch(op, activity)
	case bpm.KindGateway:
		s.dispatch(op, gateway)
	default:
		s.notifier.Notify(Notice{Level: NoticeInfo, Op: op, Message: "Start and end events are always present."})
	}
}

// DeleteSelected soft-deletes the selected node.
func (s *Surface) DeleteSelected() {
	if s.selected != nil {
		s.Delete(*s.selected)
	}
}

// ReactivateSelected restores the selected node.
func (s *Surface) ReactivateSelected() {
	if s.selected != nil {
		s.Reactivate(*s.selected)
	}
}

// PurgeSelected permanently deletes the selected node.
func (s *Surface) PurgeSelected() {
	if s.selected != nil {
		s.Purge(*s.selected)
	}
}
