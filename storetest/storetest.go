// Package storetest is a behavioural suite every bpm.Store implementation
// must pass. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/bpm"
)

// Run executes every scenario against a fresh process of the store returned
// by newStore.
func Run(t *testing.T, newStore func(t *testing.T) bpm.Store) {
	var tenant int64 = 1000
	for scenario, fn := range map[string]func(t *testing.T, f *fixture){
		"activity lifecycle":               testActivityLifecycle,
		"gateway lifecycle":                testGatewayLifecycle,
		"update keeps active flag":         testUpdateKeepsActive,
		"soft delete is idempotent":        testSoftDeleteIdempotent,
		"delete rejected while connected":  testDeleteNodeInUse,
		"purge rejected by inactive arc":   testPurgeNodeInUse,
		"self loop rejected":               testSelfLoop,
		"unknown endpoint rejected":        testUnknownEndpoint,
		"pseudo events as endpoints":       testPseudoEvents,
		"pseudo event direction":           testPseudoEventDirection,
		"arc reactivation checks nodes":    testReactivateArc,
		"list active filters":              testListActive,
		"not found":                        testNotFound,
		"process carries its elements":     testGetProcess,
		"roles":                            testRoles,
		"responsible role is checked":      testResponsibleRole,
		"field limits":                     testFieldLimits,
		"elements are scoped to a process": testProcessScope,
	} {
		tenant++
		tenantID := tenant
		t.Run(scenario, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			p, err := s.CreateProcess(ctx, &bpm.Process{TenantID: tenantID, Name: "Onboarding"})
			require.NoError(t, err)
			fn(t, &fixture{Store: s, ctx: ctx, tenantID: tenantID, processID: p.ID})
		})
	}
}

type fixture struct {
	bpm.Store
	ctx       context.Context
	tenantID  int64
	processID int64
}

func (f *fixture) activity(t *testing.T, name string) *bpm.Activity {
	t.Helper()
	a, err := f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: name, Kind: bpm.ActivityHumanTask})
	require.NoError(t, err)
	return a
}

func (f *fixture) gateway(t *testing.T, name string) *bpm.Gateway {
	t.Helper()
	g, err := f.CreateGateway(f.ctx, f.processID, &bpm.Gateway{Name: name, Kind: bpm.GatewayExclusive})
	require.NoError(t, err)
	return g
}

func (f *fixture) arc(t *testing.T, src, dst bpm.Endpoint) *bpm.Arc {
	t.Helper()
	a := bpm.NewArc(f.processID, src, dst)
	out, err := f.CreateArc(f.ctx, f.processID, &a)
	require.NoError(t, err)
	return out
}

func requireRejected(t *testing.T, err error, sentinel error, status int) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	var rej *bpm.RejectionError
	require.True(t, errors.As(err, &rej), "expected a rejection, got %v", err)
	require.Equal(t, status, rej.Status)
	require.NotEmpty(t, rej.Message)
}

func testActivityLifecycle(t *testing.T, f *fixture) {
	in := &bpm.Activity{Name: "Review", Description: "check the form", Kind: bpm.ActivityManual}
	in.SetPosition(bpm.Position{X: 140, Y: 80})
	a, err := f.CreateActivity(f.ctx, f.processID, in)
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	require.True(t, a.Active)
	require.Equal(t, f.processID, a.ProcessID)

	got, err := f.GetActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	pos, ok := got.Position()
	require.True(t, ok)
	require.Equal(t, bpm.Position{X: 140, Y: 80}, pos)

	got.Name = "Review form"
	upd, err := f.UpdateActivity(f.ctx, f.processID, got)
	require.NoError(t, err)
	require.Equal(t, "Review form", upd.Name)

	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, a.ID))
	got, err = f.GetActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	re, err := f.ReactivateActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	require.True(t, re.Active)

	require.NoError(t, f.PurgeActivity(f.ctx, f.processID, a.ID))
	_, err = f.GetActivity(f.ctx, f.processID, a.ID)
	require.ErrorIs(t, err, bpm.ErrActivityNotFound)
}

func testGatewayLifecycle(t *testing.T, f *fixture) {
	g := f.gateway(t, "Approved?")
	require.True(t, g.Active)
	_, ok := g.Position()
	require.False(t, ok)

	g.Kind = bpm.GatewayParallel
	g.SetPosition(bpm.Position{X: 10, Y: 20})
	upd, err := f.UpdateGateway(f.ctx, f.processID, g)
	require.NoError(t, err)
	require.Equal(t, bpm.GatewayParallel, upd.Kind)
	pos, ok := upd.Position()
	require.True(t, ok)
	require.Equal(t, bpm.Position{X: 10, Y: 20}, pos)

	require.NoError(t, f.DeleteGateway(f.ctx, f.processID, g.ID))
	re, err := f.ReactivateGateway(f.ctx, f.processID, g.ID)
	require.NoError(t, err)
	require.True(t, re.Active)

	require.NoError(t, f.PurgeGateway(f.ctx, f.processID, g.ID))
	_, err = f.GetGateway(f.ctx, f.processID, g.ID)
	require.ErrorIs(t, err, bpm.ErrGatewayNotFound)
}

func testUpdateKeepsActive(t *testing.T, f *fixture) {
	a := f.activity(t, "Sign")
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, a.ID))

	a.Active = true
	a.Name = "Sign contract"
	upd, err := f.UpdateActivity(f.ctx, f.processID, a)
	require.NoError(t, err)
	require.False(t, upd.Active)
	require.Equal(t, "Sign contract", upd.Name)
}

func testSoftDeleteIdempotent(t *testing.T, f *fixture) {
	a := f.activity(t, "Archive")
	src := f.activity(t, "Collect")
	arc := f.arc(t, src.Endpoint(), a.Endpoint())

	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, a.ID))
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, a.ID))

	got, err := f.GetActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func testDeleteNodeInUse(t *testing.T, f *fixture) {
	a := f.activity(t, "Collect")
	g := f.gateway(t, "Complete?")
	arc := f.arc(t, a.Endpoint(), g.Endpoint())

	requireRejected(t, f.DeleteActivity(f.ctx, f.processID, a.ID), bpm.ErrNodeInUse, http.StatusConflict)
	requireRejected(t, f.DeleteGateway(f.ctx, f.processID, g.ID), bpm.ErrNodeInUse, http.StatusConflict)

	got, err := f.GetActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	require.True(t, got.Active)

	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, a.ID))
	require.NoError(t, f.DeleteGateway(f.ctx, f.processID, g.ID))
}

func testPurgeNodeInUse(t *testing.T, f *fixture) {
	a := f.activity(t, "Collect")
	b := f.activity(t, "File")
	arc := f.arc(t, a.Endpoint(), b.Endpoint())
	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))

	requireRejected(t, f.PurgeActivity(f.ctx, f.processID, b.ID), bpm.ErrNodeInUse, http.StatusConflict)

	require.NoError(t, f.PurgeArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.PurgeArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.PurgeActivity(f.ctx, f.processID, b.ID))
}

func testSelfLoop(t *testing.T, f *fixture) {
	a := f.activity(t, "Loop")
	arc := bpm.NewArc(f.processID, a.Endpoint(), a.Endpoint())
	_, err := f.CreateArc(f.ctx, f.processID, &arc)
	require.ErrorIs(t, err, bpm.ErrSelfLoop)

	arcs, err := f.ListArcs(f.ctx, f.processID)
	require.NoError(t, err)
	require.Empty(t, arcs)
}

func testUnknownEndpoint(t *testing.T, f *fixture) {
	a := f.activity(t, "Collect")
	missing := bpm.NewArc(f.processID, a.Endpoint(), bpm.Endpoint{Kind: bpm.KindGateway, ID: 987654})
	_, err := f.CreateArc(f.ctx, f.processID, &missing)
	requireRejected(t, err, bpm.ErrUnknownEndpoint, http.StatusUnprocessableEntity)

	b := f.activity(t, "Retired")
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, b.ID))
	inactive := bpm.NewArc(f.processID, a.Endpoint(), b.Endpoint())
	_, err = f.CreateArc(f.ctx, f.processID, &inactive)
	requireRejected(t, err, bpm.ErrUnknownEndpoint, http.StatusUnprocessableEntity)

	bad := bpm.NewArc(f.processID, a.Endpoint(), bpm.Endpoint{Kind: "TIMER", ID: 1})
	_, err = f.CreateArc(f.ctx, f.processID, &bad)
	require.ErrorIs(t, err, bpm.ErrInvalid)
}

func testPseudoEvents(t *testing.T, f *fixture) {
	a := f.activity(t, "Only step")
	in := f.arc(t, bpm.StartEvent, a.Endpoint())
	out := f.arc(t, a.Endpoint(), bpm.EndEvent)
	require.Equal(t, bpm.StartEvent, in.Source())
	require.Equal(t, bpm.EndEvent, out.Target())

	out.Condition = "done"
	upd, err := f.UpdateArc(f.ctx, f.processID, out)
	require.NoError(t, err)
	require.Equal(t, "done", upd.Condition)
	require.True(t, upd.Active)
}

func testPseudoEventDirection(t *testing.T, f *fixture) {
	a := f.activity(t, "Only step")

	into := bpm.NewArc(f.processID, a.Endpoint(), bpm.StartEvent)
	_, err := f.CreateArc(f.ctx, f.processID, &into)
	requireRejected(t, err, bpm.ErrInvalid, http.StatusUnprocessableEntity)

	from := bpm.NewArc(f.processID, bpm.EndEvent, a.Endpoint())
	_, err = f.CreateArc(f.ctx, f.processID, &from)
	requireRejected(t, err, bpm.ErrInvalid, http.StatusUnprocessableEntity)

	arc := f.arc(t, bpm.StartEvent, a.Endpoint())
	arc.SourceKind, arc.SourceID = bpm.KindActivity, a.ID
	arc.TargetKind, arc.TargetID = bpm.KindStartEvent, bpm.PseudoEventID
	_, err = f.UpdateArc(f.ctx, f.processID, arc)
	requireRejected(t, err, bpm.ErrInvalid, http.StatusUnprocessableEntity)

	arcs, err := f.ListArcs(f.ctx, f.processID)
	require.NoError(t, err)
	require.Len(t, arcs, 1)
	require.Equal(t, bpm.StartEvent, arcs[0].Source())
}

func testReactivateArc(t *testing.T, f *fixture) {
	a := f.activity(t, "Collect")
	b := f.activity(t, "File")
	arc := f.arc(t, a.Endpoint(), b.Endpoint())

	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, b.ID))

	_, err := f.ReactivateArc(f.ctx, f.processID, arc.ID)
	requireRejected(t, err, bpm.ErrUnknownEndpoint, http.StatusUnprocessableEntity)

	_, err = f.ReactivateActivity(f.ctx, f.processID, b.ID)
	require.NoError(t, err)
	re, err := f.ReactivateArc(f.ctx, f.processID, arc.ID)
	require.NoError(t, err)
	require.True(t, re.Active)
}

func testListActive(t *testing.T, f *fixture) {
	a := f.activity(t, "Keep")
	b := f.activity(t, "Drop")
	g := f.gateway(t, "Drop gateway")
	arc := f.arc(t, a.Endpoint(), bpm.EndEvent)
	require.NoError(t, f.DeleteActivity(f.ctx, f.processID, b.ID))
	require.NoError(t, f.DeleteGateway(f.ctx, f.processID, g.ID))
	require.NoError(t, f.DeleteArc(f.ctx, f.processID, arc.ID))

	all, err := f.ListActivities(f.ctx, f.processID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, a.ID, all[0].ID)

	active, err := f.ListActiveActivities(f.ctx, f.processID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)

	gws, err := f.ListActiveGateways(f.ctx, f.processID)
	require.NoError(t, err)
	require.Empty(t, gws)

	arcs, err := f.ListActiveArcs(f.ctx, f.processID)
	require.NoError(t, err)
	require.Empty(t, arcs)
	arcs, err = f.ListArcs(f.ctx, f.processID)
	require.NoError(t, err)
	require.Len(t, arcs, 1)
}

func testNotFound(t *testing.T, f *fixture) {
	const missing = 987654
	_, err := f.GetActivity(f.ctx, f.processID, missing)
	require.ErrorIs(t, err, bpm.ErrActivityNotFound)
	_, err = f.UpdateActivity(f.ctx, f.processID, &bpm.Activity{ID: missing, Name: "x", Kind: bpm.ActivityManual})
	require.ErrorIs(t, err, bpm.ErrActivityNotFound)
	require.ErrorIs(t, f.DeleteActivity(f.ctx, f.processID, missing), bpm.ErrActivityNotFound)

	_, err = f.GetGateway(f.ctx, f.processID, missing)
	require.ErrorIs(t, err, bpm.ErrGatewayNotFound)
	require.ErrorIs(t, f.DeleteGateway(f.ctx, f.processID, missing), bpm.ErrGatewayNotFound)

	_, err = f.GetArc(f.ctx, f.processID, missing)
	require.ErrorIs(t, err, bpm.ErrArcNotFound)
	require.ErrorIs(t, f.DeleteArc(f.ctx, f.processID, missing), bpm.ErrArcNotFound)

	_, err = f.GetProcess(f.ctx, f.tenantID, missing)
	require.ErrorIs(t, err, bpm.ErrProcessNotFound)
	_, err = f.GetProcess(f.ctx, f.tenantID+1, f.processID)
	require.ErrorIs(t, err, bpm.ErrProcessNotFound)
	_, err = f.CreateActivity(f.ctx, missing, &bpm.Activity{Name: "x", Kind: bpm.ActivityManual})
	require.ErrorIs(t, err, bpm.ErrProcessNotFound)
}

func testGetProcess(t *testing.T, f *fixture) {
	a := f.activity(t, "Collect")
	g := f.gateway(t, "Complete?")
	f.arc(t, a.Endpoint(), g.Endpoint())

	p, err := f.GetProcess(f.ctx, f.tenantID, f.processID)
	require.NoError(t, err)
	require.Equal(t, "Onboarding", p.Name)
	require.Equal(t, bpm.ProcessDraft, p.State)
	require.True(t, p.Active)
	require.Len(t, p.Activities, 1)
	require.Len(t, p.Gateways, 1)
	require.Len(t, p.Arcs, 1)
}

func testRoles(t *testing.T, f *fixture) {
	clerk, err := f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID, Name: "Clerk", Active: true})
	require.NoError(t, err)
	_, err = f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID + 1, Name: "Elsewhere", Active: true})
	require.NoError(t, err)
	_, err = f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID})
	require.ErrorIs(t, err, bpm.ErrInvalid)

	roles, err := f.ListRoles(f.ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "Clerk", roles[0].Name)

	a, err := f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: "File", Kind: bpm.ActivityHumanTask, RoleID: &clerk.ID})
	require.NoError(t, err)
	require.NotNil(t, a.RoleID)
	require.Equal(t, clerk.ID, *a.RoleID)
}

func testResponsibleRole(t *testing.T, f *fixture) {
	clerk, err := f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID, Name: "Clerk", Active: true})
	require.NoError(t, err)
	retired, err := f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID, Name: "Archivist"})
	require.NoError(t, err)
	foreign, err := f.CreateRole(f.ctx, &bpm.Role{TenantID: f.tenantID + 1, Name: "Elsewhere", Active: true})
	require.NoError(t, err)
	const missing = 987654

	for _, id := range []int64{missing, retired.ID, foreign.ID} {
		_, err := f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: "File", Kind: bpm.ActivityHumanTask, RoleID: &id})
		requireRejected(t, err, bpm.ErrInvalid, http.StatusUnprocessableEntity)
	}
	acts, err := f.ListActivities(f.ctx, f.processID)
	require.NoError(t, err)
	require.Empty(t, acts)

	a, err := f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: "File", Kind: bpm.ActivityHumanTask, RoleID: &clerk.ID})
	require.NoError(t, err)

	a.RoleID = &foreign.ID
	_, err = f.UpdateActivity(f.ctx, f.processID, a)
	requireRejected(t, err, bpm.ErrInvalid, http.StatusUnprocessableEntity)

	got, err := f.GetActivity(f.ctx, f.processID, a.ID)
	require.NoError(t, err)
	require.Equal(t, clerk.ID, *got.RoleID)

	got.RoleID = nil
	upd, err := f.UpdateActivity(f.ctx, f.processID, got)
	require.NoError(t, err)
	require.Nil(t, upd.RoleID)
}

func testFieldLimits(t *testing.T, f *fixture) {
	_, err := f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: strings.Repeat("n", bpm.MaxNameLength+1), Kind: bpm.ActivityManual})
	require.ErrorIs(t, err, bpm.ErrInvalid)
	_, err = f.CreateActivity(f.ctx, f.processID, &bpm.Activity{Name: " ", Kind: bpm.ActivityManual})
	require.ErrorIs(t, err, bpm.ErrInvalid)
	_, err = f.CreateGateway(f.ctx, f.processID, &bpm.Gateway{Name: "g", Kind: "XOR"})
	require.ErrorIs(t, err, bpm.ErrInvalid)

	a := f.activity(t, "Collect")
	arc := bpm.NewArc(f.processID, a.Endpoint(), bpm.EndEvent)
	arc.Condition = strings.Repeat("c", bpm.MaxConditionLength+1)
	_, err = f.CreateArc(f.ctx, f.processID, &arc)
	require.ErrorIs(t, err, bpm.ErrInvalid)
}

func testProcessScope(t *testing.T, f *fixture) {
	other, err := f.CreateProcess(f.ctx, &bpm.Process{TenantID: f.tenantID, Name: "Offboarding"})
	require.NoError(t, err)
	foreign, err := f.CreateActivity(f.ctx, other.ID, &bpm.Activity{Name: "Elsewhere", Kind: bpm.ActivityManual})
	require.NoError(t, err)

	_, err = f.GetActivity(f.ctx, f.processID, foreign.ID)
	require.ErrorIs(t, err, bpm.ErrActivityNotFound)

	a := f.activity(t, "Here")
	arc := bpm.NewArc(f.processID, a.Endpoint(), foreign.Endpoint())
	_, err = f.CreateArc(f.ctx, f.processID, &arc)
	require.ErrorIs(t, err, bpm.ErrUnknownEndpoint)
}
