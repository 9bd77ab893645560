package editor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meikuraledutech/bpm"
)

// Applier runs model updates on the goroutine that owns the Graph.
type Applier interface {
	Apply(fn func())
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(fn func())

func (f ApplierFunc) Apply(fn func()) { f(fn) }

// Inline applies updates on the calling goroutine.
var Inline Applier = ApplierFunc(func(fn func()) { fn() })

// OrchestratorOptions configures NewOrchestrator.
type OrchestratorOptions struct {
	// Applier defaults to Inline.
	Applier Applier
	Logger  *zap.Logger
	Metrics *Metrics
}

// Orchestrator issues element operations against the remote store and
// refreshes the Graph from it.
//
// Every mutating operation is one remote call followed by a full re-list of
// the affected family; the graph is never patched optimistically. Remote
// calls run on the caller's goroutine, while graph and position updates go
// through the Applier. Errors are returned unchanged and never retried.
type Orchestrator struct {
	store     bpm.Store
	tenantID  int64
	processID int64

	graph     *Graph
	positions *Positions

	apply   Applier
	logger  *zap.Logger
	metrics *Metrics
}

// NewOrchestrator returns an Orchestrator for graph's process.
func NewOrchestrator(store bpm.Store, tenantID int64, graph *Graph, positions *Positions, opts OrchestratorOptions) *Orchestrator {
	if opts.Applier == nil {
		opts.Applier = Inline
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		tenantID:  tenantID,
		processID: graph.ProcessID(),
		graph:     graph,
		positions: positions,
		apply:     opts.Applier,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// begin tags ctx with a request id shared by every call of one operation.
func begin(ctx context.Context) context.Context {
	if bpm.RequestID(ctx) != "" {
		return ctx
	}
	return bpm.WithRequestID(ctx, uuid.NewString())
}

// call runs one remote call, logging and timing it.
func (o *Orchestrator) call(ctx context.Context, family Family, op string, fn func(ctx context.Context) error) error {
	fields := []zap.Field{
		zap.Stringer("family", family),
		zap.String("op", op),
		zap.Int64("process_id", o.processID),
		zap.String("request_id", bpm.RequestID(ctx)),
	}
	o.logger.Debug("remote call", fields...)

	start := time.Now()
	err := fn(ctx)
	o.metrics.observe(family.String(), op, start, err)
	if err != nil {
		o.logger.Warn("remote call failed", append(fields, zap.Error(err))...)
	}
	return err
}

// Load fetches the process, its three element families and the tenant's
// roles concurrently, then replaces the whole graph.
func (o *Orchestrator) Load(ctx context.Context) error {
	ctx = begin(ctx)
	var (
		process    *bpm.Process
		roles      []bpm.Role
		activities []bpm.Activity
		gateways   []bpm.Gateway
		arcs       []bpm.Arc
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.call(gctx, FamilyContext, "get", func(ctx context.Context) (err error) {
			process, err = o.store.GetProcess(ctx, o.tenantID, o.processID)
			return err
		})
	})
	g.Go(func() error {
		return o.call(gctx, FamilyContext, "roles", func(ctx context.Context) (err error) {
			roles, err = o.store.ListRoles(ctx, o.tenantID)
			return err
		})
	})
	g.Go(func() error {
		return o.call(gctx, FamilyActivities, "list", func(ctx context.Context) (err error) {
			activities, err = o.store.ListActivities(ctx, o.processID)
			return err
		})
	})
	g.Go(func() error {
		return o.call(gctx, FamilyGateways, "list", func(ctx context.Context) (err error) {
			gateways, err = o.store.ListGateways(ctx, o.processID)
			return err
		})
	})
	g.Go(func() error {
		return o.call(gctx, FamilyArcs, "list", func(ctx context.Context) (err error) {
			arcs, err = o.store.ListArcs(ctx, o.processID)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.apply.Apply(func() {
		o.graph.SetContext(*process, roles)
		o.applyActivities(activities)
		o.applyGateways(gateways)
		o.graph.ReplaceArcs(arcs)
	})
	return nil
}

// MoveNode persists a new position for an activity or gateway with a
// single update. The caller has already moved the node locally; a failure
// is returned but nothing is rolled back.
func (o *Orchestrator) MoveNode(ctx context.Context, n bpm.Node, to bpm.Position) error {
	switch n.Kind {
	case bpm.KindActivity:
		a := *n.Activity
		a.SetPosition(to)
		_, err := o.updateActivity(ctx, a, "move")
		return err
	case bpm.KindGateway:
		g := *n.Gateway
		g.SetPosition(to)
		_, err := o.updateGateway(ctx, g, "move")
		return err
	case bpm.KindStartEvent, bpm.KindEndEvent:
		return fmt.Errorf("%w: %s has no persisted position", bpm.ErrInvalid, n.Kind)
	}
	panic(fmt.Sprintf("editor: unknown node kind %q", n.Kind))
}

// ── Activities ──────────────────────────────────────────────────────

func (o *Orchestrator) applyActivities(list []bpm.Activity) {
	nodes := make([]bpm.Node, 0, len(list))
	for _, a := range list {
		nodes = append(nodes, bpm.ActivityNode(a))
	}
	o.positions.Sync(bpm.KindActivity, nodes)
	o.graph.ReplaceActivities(list)
}

// ListActivities re-fetches every activity into the graph.
func (o *Orchestrator) ListActivities(ctx context.Context) error {
	ctx = begin(ctx)
	var list []bpm.Activity
	err := o.call(ctx, FamilyActivities, "list", func(ctx context.Context) (err error) {
		list, err = o.store.ListActivities(ctx, o.processID)
		return err
	})
	if err != nil {
		return err
	}
	o.apply.Apply(func() { o.applyActivities(list) })
	return nil
}

// ListActiveActivities returns the active activities without touching the
// graph.
func (o *Orchestrator) ListActiveActivities(ctx context.Context) ([]bpm.Activity, error) {
	ctx = begin(ctx)
	var list []bpm.Activity
	err := o.call(ctx, FamilyActivities, "list_active", func(ctx context.Context) (err error) {
		list, err = o.store.ListActiveActivities(ctx, o.processID)
		return err
	})
	return list, err
}

// CreateActivity creates a and refreshes the activities. An activity with
// no position is placed at a synthesised one.
func (o *Orchestrator) CreateActivity(ctx context.Context, a bpm.Activity) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if _, ok := a.Position(); !ok {
		a.SetPosition(o.positions.Synthesize())
	}
	a.ProcessID = o.processID

	ctx = begin(ctx)
	var out *bpm.Activity
	err := o.call(ctx, FamilyActivities, "create", func(ctx context.Context) (err error) {
		out, err = o.store.CreateActivity(ctx, o.processID, &a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListActivities(ctx)
}

// UpdateActivity replaces the editable fields of a and refreshes.
func (o *Orchestrator) UpdateActivity(ctx context.Context, a bpm.Activity) (*bpm.Activity, error) {
	return o.updateActivity(ctx, a, "update")
}

func (o *Orchestrator) updateActivity(ctx context.Context, a bpm.Activity, op string) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ProcessID = o.processID

	ctx = begin(ctx)
	var out *bpm.Activity
	err := o.call(ctx, FamilyActivities, op, func(ctx context.Context) (err error) {
		out, err = o.store.UpdateActivity(ctx, o.processID, &a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListActivities(ctx)
}

// DeleteActivity soft-deletes an activity and refreshes.
func (o *Orchestrator) DeleteActivity(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyActivities, "delete", func(ctx context.Context) error {
		return o.store.DeleteActivity(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListActivities(ctx)
}

// ReactivateActivity restores a soft-deleted activity and refreshes.
func (o *Orchestrator) ReactivateActivity(ctx context.Context, id int64) (*bpm.Activity, error) {
	ctx = begin(ctx)
	var out *bpm.Activity
	err := o.call(ctx, FamilyActivities, "reactivate", func(ctx context.Context) (err error) {
		out, err = o.store.ReactivateActivity(ctx, o.processID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListActivities(ctx)
}

// PurgeActivity permanently deletes an activity and refreshes.
func (o *Orchestrator) PurgeActivity(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyActivities, "purge", func(ctx context.Context) error {
		return o.store.PurgeActivity(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListActivities(ctx)
}

// ── Gateways ────────────────────────────────────────────────────────

func (o *Orchestrator) applyGateways(list []bpm.Gateway) {
	nodes := make([]bpm.Node, 0, len(list))
	for _, g := range list {
		nodes = append(nodes, bpm.GatewayNode(g))
	}
	o.positions.Sync(bpm.KindGateway, nodes)
	o.graph.ReplaceGateways(list)
}

// ListGateways re-fetches every gateway into the graph.
func (o *Orchestrator) ListGateways(ctx context.Context) error {
	ctx = begin(ctx)
	var list []bpm.Gateway
	err := o.call(ctx, FamilyGateways, "list", func(ctx context.Context) (err error) {
		list, err = o.store.ListGateways(ctx, o.processID)
		return err
	})
	if err != nil {
		return err
	}
	o.apply.Apply(func() { o.applyGateways(list) })
	return nil
}

// ListActiveGateways returns the active gateways without touching the graph.
func (o *Orchestrator) ListActiveGateways(ctx context.Context) ([]bpm.Gateway, error) {
	ctx = begin(ctx)
	var list []bpm.Gateway
	err := o.call(ctx, FamilyGateways, "list_active", func(ctx context.Context) (err error) {
		list, err = o.store.ListActiveGateways(ctx, o.processID)
		return err
	})
	return list, err
}

// CreateGateway creates g and refreshes the gateways.
func (o *Orchestrator) CreateGateway(ctx context.Context, g bpm.Gateway) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if _, ok := g.Position(); !ok {
		g.SetPosition(o.positions.Synthesize())
	}
	g.ProcessID = o.processID

	ctx = begin(ctx)
	var out *bpm.Gateway
	err := o.call(ctx, FamilyGateways, "create", func(ctx context.Context) (err error) {
		out, err = o.store.CreateGateway(ctx, o.processID, &g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListGateways(ctx)
}

// UpdateGateway replaces the editable fields of g and refreshes.
func (o *Orchestrator) UpdateGateway(ctx context.Context, g bpm.Gateway) (*bpm.Gateway, error) {
	return o.updateGateway(ctx, g, "update")
}

func (o *Orchestrator) updateGateway(ctx context.Context, g bpm.Gateway, op string) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	g.ProcessID = o.processID

	ctx = begin(ctx)
	var out *bpm.Gateway
	err := o.call(ctx, FamilyGateways, op, func(ctx context.Context) (err error) {
		out, err = o.store.UpdateGateway(ctx, o.processID, &g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListGateways(ctx)
}

// DeleteGateway soft-deletes a gateway and refreshes. The store refuses
// while active arcs still connect it.
func (o *Orchestrator) DeleteGateway(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyGateways, "delete", func(ctx context.Context) error {
		return o.store.DeleteGateway(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListGateways(ctx)
}

// ReactivateGateway restores a soft-deleted gateway and refreshes.
func (o *Orchestrator) ReactivateGateway(ctx context.Context, id int64) (*bpm.Gateway, error) {
	ctx = begin(ctx)
	var out *bpm.Gateway
	err := o.call(ctx, FamilyGateways, "reactivate", func(ctx context.Context) (err error) {
		out, err = o.store.ReactivateGateway(ctx, o.processID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListGateways(ctx)
}

// PurgeGateway permanently deletes a gateway and refreshes.
func (o *Orchestrator) PurgeGateway(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyGateways, "purge", func(ctx context.Context) error {
		return o.store.PurgeGateway(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListGateways(ctx)
}

// ── Arcs ────────────────────────────────────────────────────────────

// ListArcs re-fetches every arc into the graph.
func (o *Orchestrator) ListArcs(ctx context.Context) error {
	ctx = begin(ctx)
	var list []bpm.Arc
	err := o.call(ctx, FamilyArcs, "list", func(ctx context.Context) (err error) {
		list, err = o.store.ListArcs(ctx, o.processID)
		return err
	})
	if err != nil {
		return err
	}
	o.apply.Apply(func() { o.graph.ReplaceArcs(list) })
	return nil
}

// ListActiveArcs returns the active arcs without touching the graph.
func (o *Orchestrator) ListActiveArcs(ctx context.Context) ([]bpm.Arc, error) {
	ctx = begin(ctx)
	var list []bpm.Arc
	err := o.call(ctx, FamilyArcs, "list_active", func(ctx context.Context) (err error) {
		list, err = o.store.ListActiveArcs(ctx, o.processID)
		return err
	})
	return list, err
}

// CreateArc creates a, appends it to the graph and refreshes the arcs.
// Self-loops are rejected before any remote call.
func (o *Orchestrator) CreateArc(ctx context.Context, a bpm.Arc) (*bpm.Arc, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ProcessID = o.processID
	a.Active = true

	ctx = begin(ctx)
	var out *bpm.Arc
	err := o.call(ctx, FamilyArcs, "create", func(ctx context.Context) (err error) {
		out, err = o.store.CreateArc(ctx, o.processID, &a)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := *out
	o.apply.Apply(func() { o.graph.AppendArc(created) })
	return out, o.ListArcs(ctx)
}

// UpdateArc replaces the endpoints and condition of a and refreshes.
func (o *Orchestrator) UpdateArc(ctx context.Context, a bpm.Arc) (*bpm.Arc, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ProcessID = o.processID

	ctx = begin(ctx)
	var out *bpm.Arc
	err := o.call(ctx, FamilyArcs, "update", func(ctx context.Context) (err error) {
		out, err = o.store.UpdateArc(ctx, o.processID, &a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListArcs(ctx)
}

// DeleteArc soft-deletes an arc and refreshes.
func (o *Orchestrator) DeleteArc(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyArcs, "delete", func(ctx context.Context) error {
		return o.store.DeleteArc(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListArcs(ctx)
}

// ReactivateArc restores a soft-deleted arc and refreshes.
func (o *Orchestrator) ReactivateArc(ctx context.Context, id int64) (*bpm.Arc, error) {
	ctx = begin(ctx)
	var out *bpm.Arc
	err := o.call(ctx, FamilyArcs, "reactivate", func(ctx context.Context) (err error) {
		out, err = o.store.ReactivateArc(ctx, o.processID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, o.ListArcs(ctx)
}

// PurgeArc permanently deletes an arc and refreshes.
func (o *Orchestrator) PurgeArc(ctx context.Context, id int64) error {
	ctx = begin(ctx)
	err := o.call(ctx, FamilyArcs, "purge", func(ctx context.Context) error {
		return o.store.PurgeArc(ctx, o.processID, id)
	})
	if err != nil {
		return err
	}
	return o.ListArcs(ctx)
}
