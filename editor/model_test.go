package editor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/bpm"
)

func placed(a bpm.Activity, x, y float64) bpm.Activity {
	a.SetPosition(bpm.Position{X: x, Y: y})
	return a
}

func TestGraphNodes(t *testing.T) {
	g := NewGraph(7)
	var changes []Change
	g.Subscribe(func(c Change) { changes = append(changes, c) })

	g.ReplaceActivities([]bpm.Activity{
		{ID: 1, Name: "Review", Active: true},
		{ID: 2, Name: "Archive", Active: false},
	})
	g.ReplaceGateways([]bpm.Gateway{{ID: 1, Name: "Approved?", Active: true}})

	var labels []string
	for _, n := range g.Nodes() {
		labels = append(labels, n.Label())
	}
	require.Equal(t, []string{"Start", "Review", "Archive", "Approved?", "End"}, labels)

	var active []bpm.Endpoint
	for _, n := range g.ActiveNodes() {
		active = append(active, n.Endpoint())
	}
	require.Equal(t, []bpm.Endpoint{
		bpm.StartEvent,
		{Kind: bpm.KindActivity, ID: 1},
		{Kind: bpm.KindGateway, ID: 1},
		bpm.EndEvent,
	}, active)

	// Activity 1 and gateway 1 share an id but not a kind.
	n, ok := g.Lookup(bpm.Endpoint{Kind: bpm.KindGateway, ID: 1})
	require.True(t, ok)
	require.Equal(t, "Approved?", n.Label())

	_, ok = g.Lookup(bpm.Endpoint{Kind: bpm.KindActivity, ID: 2})
	require.True(t, ok)
	_, ok = g.LookupActive(bpm.Endpoint{Kind: bpm.KindActivity, ID: 2})
	require.False(t, ok)

	require.Equal(t, []Change{{Family: FamilyActivities}, {Family: FamilyGateways}}, changes)
}

func TestGraphArcs(t *testing.T) {
	g := NewGraph(7)
	var changes []Change
	g.Subscribe(func(c Change) { changes = append(changes, c) })

	a := bpm.NewArc(7, bpm.StartEvent, bpm.Endpoint{Kind: bpm.KindActivity, ID: 1})
	a.ID = 10
	g.AppendArc(a)
	require.Len(t, changes, 1)
	require.Equal(t, FamilyArcs, changes[0].Family)
	require.Equal(t, a, *changes[0].Appended)

	inactive := bpm.NewArc(7, bpm.StartEvent, bpm.EndEvent)
	inactive.ID = 11
	inactive.Active = false
	g.ReplaceArcs([]bpm.Arc{a, inactive})
	require.Nil(t, changes[1].Appended)
	require.Len(t, g.Arcs(), 2)
	require.Equal(t, []bpm.Arc{a}, g.ActiveArcs())

	// Copies handed out do not alias the graph.
	arcs := g.Arcs()
	arcs[0].Condition = "changed"
	require.Empty(t, g.Arcs()[0].Condition)
}

func TestGraphContext(t *testing.T) {
	g := NewGraph(7)
	_, ok := g.Process()
	require.False(t, ok)

	g.SetContext(bpm.Process{
		ID:         7,
		Name:       "Onboarding",
		Activities: []bpm.Activity{{ID: 1}},
	}, []bpm.Role{
		{ID: 1, Name: "Clerk", Active: true},
		{ID: 2, Name: "Retired", Active: false},
	})

	p, ok := g.Process()
	require.True(t, ok)
	require.Equal(t, "Onboarding", p.Name)
	require.Nil(t, p.Activities)
	require.Equal(t, []bpm.Role{{ID: 1, Name: "Clerk", Active: true}}, g.ActiveRoles())
}

func TestPositionsSync(t *testing.T) {
	p := NewPositions(DefaultPlacement, 7)
	a1 := placed(bpm.Activity{ID: 1, Active: true}, 10, 20)
	a2 := bpm.Activity{ID: 2, Active: true}
	g1 := bpm.GatewayNode(bpm.Gateway{ID: 1, Active: true})

	var notified []bpm.Endpoint
	p.Subscribe(func(ep bpm.Endpoint) { notified = append(notified, ep) })

	p.Sync(bpm.KindActivity, []bpm.Node{bpm.ActivityNode(a1), bpm.ActivityNode(a2)})
	pos, ok := p.Position(a1.Endpoint())
	require.True(t, ok)
	require.Equal(t, bpm.Position{X: 10, Y: 20}, pos)
	pos, ok = p.Position(a2.Endpoint())
	require.True(t, ok)
	require.True(t, DefaultPlacement.Contains(pos), "synthesised %v", pos)
	require.Equal(t, []bpm.Endpoint{a1.Endpoint(), a2.Endpoint()}, notified)

	// Local moves survive a refresh carrying the stale persisted position.
	require.True(t, p.Set(a1.Endpoint(), bpm.Position{X: 5, Y: 5}))
	p.Sync(bpm.KindActivity, []bpm.Node{bpm.ActivityNode(a1), bpm.ActivityNode(a2)})
	pos, _ = p.Position(a1.Endpoint())
	require.Equal(t, bpm.Position{X: 5, Y: 5}, pos)

	// Syncing gateways leaves activities alone.
	p.Sync(bpm.KindGateway, []bpm.Node{g1})
	_, ok = p.Position(a1.Endpoint())
	require.True(t, ok)

	p.Sync(bpm.KindActivity, []bpm.Node{bpm.ActivityNode(a2)})
	_, ok = p.Position(a1.Endpoint())
	require.False(t, ok)
	_, ok = p.Position(g1.Endpoint())
	require.True(t, ok)
}

func TestPositionsSet(t *testing.T) {
	p := NewPositions(DefaultPlacement, 1)

	require.False(t, p.Set(bpm.Endpoint{Kind: bpm.KindActivity, ID: 99}, bpm.Position{}))
	require.False(t, p.Set(bpm.StartEvent, bpm.Position{X: 1, Y: 1}))

	pos, ok := p.Position(bpm.StartEvent)
	require.True(t, ok)
	require.Equal(t, DefaultStartAt, pos)
	pos, _ = p.Position(bpm.EndEvent)
	require.Equal(t, DefaultEndAt, pos)

	p.Pin(bpm.EndEvent, bpm.Position{X: 700, Y: 100})
	pos, _ = p.Position(bpm.EndEvent)
	require.Equal(t, bpm.Position{X: 700, Y: 100}, pos)

	// Activities cannot be pinned.
	p.Pin(bpm.Endpoint{Kind: bpm.KindActivity, ID: 1}, bpm.Position{})
	_, ok = p.Position(bpm.Endpoint{Kind: bpm.KindActivity, ID: 1})
	require.False(t, ok)
}

func TestSynthesize(t *testing.T) {
	pl := Placement{Origin: bpm.Position{X: 10, Y: 20}, Spread: bpm.Position{X: 5, Y: 5}}
	a, b := NewPositions(pl, 42), NewPositions(pl, 42)
	for i := 0; i < 100; i++ {
		pa, pb := a.Synthesize(), b.Synthesize()
		require.True(t, pl.Contains(pa), "synthesised %v", pa)
		require.Equal(t, pa, pb)
	}
}

type fixedLocator map[bpm.Endpoint]bpm.Position

func (l fixedLocator) Position(ep bpm.Endpoint) (bpm.Position, bool) {
	p, ok := l[ep]
	return p, ok
}

func TestRoute(t *testing.T) {
	a1 := bpm.Endpoint{Kind: bpm.KindActivity, ID: 1}
	g1 := bpm.Endpoint{Kind: bpm.KindGateway, ID: 1}
	loc := fixedLocator{
		a1:             {X: 50, Y: 50},
		g1:             {X: 300, Y: 100},
		bpm.StartEvent: {X: 20, Y: 200},
	}

	for name, tc := range map[string]struct {
		arc  bpm.Arc
		want Path
	}{
		"activity to gateway": {
			arc:  bpm.NewArc(1, a1, g1),
			want: Path{Points: []bpm.Position{{X: 110, Y: 80}, {X: 325, Y: 125}}},
		},
		"start to activity": {
			arc:  bpm.NewArc(1, bpm.StartEvent, a1),
			want: Path{Points: []bpm.Position{{X: 45, Y: 225}, {X: 110, Y: 80}}},
		},
		"unresolved target": {
			arc:  bpm.NewArc(1, a1, bpm.EndEvent),
			want: Path{},
		},
		"unknown kind": {
			arc:  bpm.Arc{SourceKind: "TIMER", SourceID: 1, TargetKind: bpm.KindActivity, TargetID: 1},
			want: Path{},
		},
	} {
		t.Run(name, func(t *testing.T) {
			got := Route(tc.arc, loc)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Route mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, len(tc.want.Points) == 0, got.IsEmpty())
		})
	}

	require.Panics(t, func() { AnchorOffset("TIMER") })
}

func TestRouterFollowsMoves(t *testing.T) {
	p := NewPositions(DefaultPlacement, 1)
	a1 := placed(bpm.Activity{ID: 1, Active: true}, 50, 50)
	a2 := placed(bpm.Activity{ID: 2, Active: true}, 200, 50)
	p.Sync(bpm.KindActivity, []bpm.Node{bpm.ActivityNode(a1), bpm.ActivityNode(a2)})

	r := NewRouter(p)
	p.Subscribe(r.Moved)

	arc := bpm.NewArc(1, a1.Endpoint(), a2.Endpoint())
	arc.ID = 1
	other := bpm.NewArc(1, bpm.StartEvent, a1.Endpoint())
	other.ID = 2
	r.Reset([]bpm.Arc{arc, other})
	r.Add(arc)
	require.Len(t, r.All(), 2)

	for _, to := range []bpm.Position{{X: 300, Y: 50}, {X: 10, Y: 400}, {X: 200, Y: 50}} {
		require.True(t, p.Set(a2.Endpoint(), to))
		require.Equal(t, Route(arc, p), r.Path(arc.ID))
		require.Equal(t, Route(other, p), r.Path(other.ID))
	}
	require.Equal(t, bpm.Position{X: 260, Y: 80}, r.Path(arc.ID).End())
	require.Equal(t, bpm.Position{X: 110, Y: 80}, r.Path(arc.ID).Start())

	r.Reset(nil)
	require.Empty(t, r.All())
	require.True(t, r.Path(arc.ID).IsEmpty())
}

func TestGesture(t *testing.T) {
	a1 := bpm.Endpoint{Kind: bpm.KindActivity, ID: 1}
	a2 := bpm.Endpoint{Kind: bpm.KindActivity, ID: 2}

	for name, tc := range map[string]struct {
		target *bpm.Endpoint
		want   Connection
		ok     bool
	}{
		"over another node": {target: &a2, want: Connection{Source: a1, Target: a2}, ok: true},
		"over empty canvas": {target: nil},
		"over its origin":   {target: &a1},
	} {
		t.Run(name, func(t *testing.T) {
			var g Gesture
			require.Equal(t, Idle, g.State())
			require.True(t, g.Begin(a1, bpm.Position{X: 1, Y: 1}))
			require.False(t, g.Begin(a2, bpm.Position{X: 9, Y: 9}))

			origin, drawing := g.Origin()
			require.True(t, drawing)
			require.Equal(t, a1, origin)

			g.Move(bpm.Position{X: 4, Y: 5})
			cursor, _ := g.Cursor()
			require.Equal(t, bpm.Position{X: 4, Y: 5}, cursor)

			c, ok := g.Release(tc.target)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, c)
			require.Equal(t, Idle, g.State())
		})
	}

	t.Run("cancel", func(t *testing.T) {
		var g Gesture
		g.Begin(a1, bpm.Position{})
		g.Cancel()
		require.Equal(t, Idle, g.State())
		_, ok := g.Release(&a2)
		require.False(t, ok)
		require.Equal(t, "Drawing", Drawing.String())
	})
}
