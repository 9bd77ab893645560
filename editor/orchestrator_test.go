package editor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/memory"
)

// spyStore records the calls that reach the store and can fail them.
type spyStore struct {
	bpm.Store

	mu    sync.Mutex
	calls []string
	ids   map[string]string
	fail  map[string]error
}

func newSpy(s bpm.Store) *spyStore {
	return &spyStore{Store: s, ids: map[string]string{}, fail: map[string]error{}}
}

func (s *spyStore) record(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	s.ids[name] = bpm.RequestID(ctx)
	return s.fail[name]
}

func (s *spyStore) called(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (s *spyStore) ListActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	if err := s.record(ctx, "ListActivities"); err != nil {
		return nil, err
	}
	return s.Store.ListActivities(ctx, processID)
}

func (s *spyStore) CreateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := s.record(ctx, "CreateActivity"); err != nil {
		return nil, err
	}
	return s.Store.CreateActivity(ctx, processID, a)
}

func (s *spyStore) UpdateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := s.record(ctx, "UpdateActivity"); err != nil {
		return nil, err
	}
	return s.Store.UpdateActivity(ctx, processID, a)
}

func (s *spyStore) CreateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	if err := s.record(ctx, "CreateArc"); err != nil {
		return nil, err
	}
	return s.Store.CreateArc(ctx, processID, a)
}

type harness struct {
	store     *memory.Store
	spy       *spyStore
	orch      *Orchestrator
	graph     *Graph
	positions *Positions
	reg       *prometheus.Registry
	tenantID  int64
	processID int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	p, err := store.CreateProcess(context.Background(), &bpm.Process{TenantID: 1, Name: "Onboarding"})
	require.NoError(t, err)

	h := &harness{
		store:     store,
		spy:       newSpy(store),
		graph:     NewGraph(p.ID),
		positions: NewPositions(DefaultPlacement, 3),
		reg:       prometheus.NewRegistry(),
		tenantID:  1,
		processID: p.ID,
	}
	h.orch = NewOrchestrator(h.spy, h.tenantID, h.graph, h.positions, OrchestratorOptions{
		Metrics: NewMetrics(h.reg),
	})
	return h
}

func (h *harness) activity(t *testing.T, name string, x, y float64) *bpm.Activity {
	t.Helper()
	a := placed(bpm.Activity{Name: name, Kind: bpm.ActivityHumanTask}, x, y)
	out, err := h.store.CreateActivity(context.Background(), h.processID, &a)
	require.NoError(t, err)
	return out
}

func (h *harness) gateway(t *testing.T, name string) *bpm.Gateway {
	t.Helper()
	out, err := h.store.CreateGateway(context.Background(), h.processID, &bpm.Gateway{Name: name, Kind: bpm.GatewayExclusive})
	require.NoError(t, err)
	return out
}

func (h *harness) arc(t *testing.T, src, dst bpm.Endpoint) *bpm.Arc {
	t.Helper()
	a := bpm.NewArc(h.processID, src, dst)
	out, err := h.store.CreateArc(context.Background(), h.processID, &a)
	require.NoError(t, err)
	return out
}

// counter returns the value of the remote call counter for the given labels.
func (h *harness) counter(t *testing.T, family, op, outcome string) float64 {
	t.Helper()
	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "bpm_editor_remote_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["family"] == family && labels["op"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestOrchestratorLoad(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activity(t, "Review", 50, 50)
	g := h.gateway(t, "Approved?")
	arc := h.arc(t, a.Endpoint(), g.Endpoint())
	_, err := h.store.CreateRole(ctx, &bpm.Role{TenantID: h.tenantID, Name: "Clerk", Active: true})
	require.NoError(t, err)
	_, err = h.store.CreateRole(ctx, &bpm.Role{TenantID: h.tenantID, Name: "Retired"})
	require.NoError(t, err)

	require.NoError(t, h.orch.Load(ctx))

	p, ok := h.graph.Process()
	require.True(t, ok)
	require.Equal(t, "Onboarding", p.Name)
	require.Len(t, h.graph.ActiveRoles(), 1)
	require.Equal(t, []bpm.Activity{*a}, h.graph.Activities())
	require.Equal(t, []bpm.Gateway{*g}, h.graph.Gateways())
	require.Equal(t, []bpm.Arc{*arc}, h.graph.Arcs())

	pos, ok := h.positions.Position(a.Endpoint())
	require.True(t, ok)
	require.Equal(t, bpm.Position{X: 50, Y: 50}, pos)

	// The gateway was never placed, so it gets a synthesised position.
	pos, ok = h.positions.Position(g.Endpoint())
	require.True(t, ok)
	require.True(t, DefaultPlacement.Contains(pos))
}

func TestOrchestratorLoadUnknownProcess(t *testing.T) {
	h := newHarness(t)
	o := NewOrchestrator(h.store, h.tenantID, NewGraph(987654), h.positions, OrchestratorOptions{})

	err := o.Load(context.Background())
	require.ErrorIs(t, err, bpm.ErrProcessNotFound)
}

func TestCreateWithoutPositionIsPlaced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.orch.CreateActivity(ctx, bpm.Activity{Name: "Sign contract", Kind: bpm.ActivityManual})
	require.NoError(t, err)
	require.True(t, a.Active)
	require.Equal(t, h.processID, a.ProcessID)

	pos, ok := a.Position()
	require.True(t, ok)
	require.True(t, DefaultPlacement.Contains(pos), "placed at %v", pos)

	stored, err := h.store.GetActivity(ctx, h.processID, a.ID)
	require.NoError(t, err)
	require.Equal(t, bpm.ActivityManual, stored.Kind)
	require.Equal(t, a, stored)

	require.Equal(t, []bpm.Activity{*a}, h.graph.Activities())
	local, ok := h.positions.Position(a.Endpoint())
	require.True(t, ok)
	require.Equal(t, pos, local)

	g, err := h.orch.CreateGateway(ctx, bpm.Gateway{Name: "Signed?", Kind: bpm.GatewayParallel})
	require.NoError(t, err)
	pos, ok = g.Position()
	require.True(t, ok)
	require.True(t, DefaultPlacement.Contains(pos))
	require.Len(t, h.graph.Gateways(), 1)
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activity(t, "Review", 10, 10)
	require.NoError(t, h.orch.Load(ctx))

	require.NoError(t, h.orch.DeleteActivity(ctx, a.ID))
	first := h.graph.Activities()
	require.NoError(t, h.orch.DeleteActivity(ctx, a.ID))
	require.Equal(t, first, h.graph.Activities())
	require.Len(t, first, 1)
	require.False(t, first[0].Active)

	active, err := h.orch.ListActiveActivities(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	got, err := h.orch.ReactivateActivity(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.True(t, h.graph.Activities()[0].Active)
}

func TestDeleteNodeInUseLeavesGraph(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activity(t, "Review", 10, 10)
	g := h.gateway(t, "Approved?")
	h.arc(t, g.Endpoint(), a.Endpoint())
	require.NoError(t, h.orch.Load(ctx))

	before := h.graph.Gateways()
	err := h.orch.DeleteGateway(ctx, g.ID)

	var rej *bpm.RejectionError
	require.True(t, errors.As(err, &rej))
	require.Equal(t, http.StatusConflict, rej.Status)
	require.ErrorIs(t, err, bpm.ErrNodeInUse)
	require.Equal(t, fmt.Sprintf("gateway %d cannot be removed while 1 arc(s) still connect it", g.ID), rej.Message)
	if diff := cmp.Diff(before, h.graph.Gateways()); diff != "" {
		t.Errorf("gateways changed (-before +after):\n%s", diff)
	}

	require.Equal(t, 1.0, h.counter(t, "gateway", "delete", "error"))
}

func TestLocalValidationSkipsStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activity(t, "Review", 10, 10)

	_, err := h.orch.CreateActivity(ctx, bpm.Activity{Name: "  ", Kind: bpm.ActivityManual})
	require.ErrorIs(t, err, bpm.ErrInvalid)
	require.False(t, h.spy.called("CreateActivity"))

	_, err = h.orch.CreateArc(ctx, bpm.NewArc(h.processID, a.Endpoint(), a.Endpoint()))
	require.ErrorIs(t, err, bpm.ErrSelfLoop)
	require.False(t, h.spy.called("CreateArc"))

	_, err = h.orch.CreateArc(ctx, bpm.NewArc(h.processID, a.Endpoint(), bpm.StartEvent))
	require.ErrorIs(t, err, bpm.ErrInvalid)
	_, err = h.orch.CreateArc(ctx, bpm.NewArc(h.processID, bpm.EndEvent, a.Endpoint()))
	require.ErrorIs(t, err, bpm.ErrInvalid)
	require.False(t, h.spy.called("CreateArc"))

	_, err = h.orch.UpdateActivity(ctx, bpm.Activity{ID: a.ID, Name: "Review", Kind: "NAP"})
	require.ErrorIs(t, err, bpm.ErrInvalid)
	require.False(t, h.spy.called("UpdateActivity"))
}

func TestCreateArcAppendsThenRefreshes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a1 := h.activity(t, "Review", 50, 50)
	a2 := h.activity(t, "Approve", 200, 50)
	require.NoError(t, h.orch.Load(ctx))

	var changes []Change
	h.graph.Subscribe(func(c Change) { changes = append(changes, c) })

	arc, err := h.orch.CreateArc(ctx, bpm.NewArc(h.processID, a1.Endpoint(), a2.Endpoint()))
	require.NoError(t, err)
	require.True(t, arc.Active)

	require.Len(t, changes, 2)
	require.Equal(t, *arc, *changes[0].Appended)
	require.Nil(t, changes[1].Appended)
	require.Equal(t, []bpm.Arc{*arc}, h.graph.ActiveArcs())

	require.NoError(t, h.orch.DeleteArc(ctx, arc.ID))
	require.Empty(t, h.graph.ActiveArcs())
	_, err = h.orch.ReactivateArc(ctx, arc.ID)
	require.NoError(t, err)
	require.Len(t, h.graph.ActiveArcs(), 1)
	require.NoError(t, h.orch.PurgeArc(ctx, arc.ID))
	require.Empty(t, h.graph.Arcs())
}

func TestCreateArcToInactiveNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a1 := h.activity(t, "Review", 50, 50)
	a2 := h.activity(t, "Approve", 200, 50)
	require.NoError(t, h.store.DeleteActivity(ctx, h.processID, a2.ID))
	require.NoError(t, h.orch.Load(ctx))

	_, err := h.orch.CreateArc(ctx, bpm.NewArc(h.processID, a1.Endpoint(), a2.Endpoint()))
	require.ErrorIs(t, err, bpm.ErrUnknownEndpoint)
	require.Empty(t, h.graph.Arcs())
}

func TestMoveNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.activity(t, "Review", 50, 50)
	require.NoError(t, h.orch.Load(ctx))

	n, ok := h.graph.Lookup(a.Endpoint())
	require.True(t, ok)
	require.NoError(t, h.orch.MoveNode(ctx, n, bpm.Position{X: 75, Y: 90}))

	stored, err := h.store.GetActivity(ctx, h.processID, a.ID)
	require.NoError(t, err)
	pos, _ := stored.Position()
	require.Equal(t, bpm.Position{X: 75, Y: 90}, pos)
	require.Equal(t, "Review", stored.Name)
	require.Equal(t, 1.0, h.counter(t, "activity", "move", "ok"))

	err = h.orch.MoveNode(ctx, bpm.StartNode(), bpm.Position{})
	require.ErrorIs(t, err, bpm.ErrInvalid)
}

func TestOperationSharesRequestID(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.CreateActivity(context.Background(), bpm.Activity{Name: "Review", Kind: bpm.ActivityAutomatic})
	require.NoError(t, err)
	id := h.spy.ids["CreateActivity"]
	require.NotEmpty(t, id)
	require.Equal(t, id, h.spy.ids["ListActivities"])

	ctx := bpm.WithRequestID(context.Background(), "req-42")
	_, err = h.orch.CreateActivity(ctx, bpm.Activity{Name: "Approve", Kind: bpm.ActivityAutomatic})
	require.NoError(t, err)
	require.Equal(t, "req-42", h.spy.ids["CreateActivity"])
}

func TestFailedRelistIsReturned(t *testing.T) {
	h := newHarness(t)
	down := fmt.Errorf("%w: connection refused", bpm.ErrUnavailable)
	h.spy.fail["ListActivities"] = down

	a, err := h.orch.CreateActivity(context.Background(), bpm.Activity{Name: "Review", Kind: bpm.ActivityAutomatic})
	require.ErrorIs(t, err, bpm.ErrUnavailable)
	require.NotNil(t, a)
	require.Empty(t, h.graph.Activities())
	require.Equal(t, 1.0, h.counter(t, "activity", "create", "ok"))
	require.Equal(t, 1.0, h.counter(t, "activity", "list", "error"))
}
