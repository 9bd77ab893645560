package terminal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/editor"
	"github.com/meikuraledutech/bpm/memory"
)

type fixture struct {
	app     *App
	screen  tcell.SimulationScreen
	surface *editor.Surface
	store   *memory.Store
	pid     int64
	a1, a2  *bpm.Activity
}

func newFixture(t *testing.T, editable bool) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	p, err := store.CreateProcess(ctx, &bpm.Process{TenantID: 1, Name: "Onboarding"})
	require.NoError(t, err)

	f := &fixture{store: store, pid: p.ID}
	for _, a := range []struct {
		dst  **bpm.Activity
		name string
		at   bpm.Position
	}{
		{&f.a1, "A1", bpm.Position{X: 50, Y: 50}},
		{&f.a2, "A2", bpm.Position{X: 200, Y: 50}},
	} {
		rec := bpm.Activity{Name: a.name, Kind: bpm.ActivityHumanTask}
		rec.SetPosition(a.at)
		*a.dst, err = store.CreateActivity(ctx, p.ID, &rec)
		require.NoError(t, err)
	}

	f.screen = tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, f.screen.Init())
	f.screen.SetSize(100, 40)
	t.Cleanup(f.screen.Fini)

	f.app = New(f.screen, Options{})
	f.surface = editor.NewSurface(store, editor.StaticSession{Tenant: 1, Process: p.ID, Editable: editable}, editor.SurfaceOptions{
		Notifier: f.app,
		Seed:     1,
	})
	f.app.surface = f.surface
	f.surface.Load()
	f.surface.Wait()
	return f
}

func (f *fixture) mouse(x, y int, buttons tcell.ButtonMask) {
	f.app.handleMouse(tcell.NewEventMouse(x, y, buttons, tcell.ModNone))
}

func (f *fixture) key(r rune) bool {
	return f.app.handleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
}

func (f *fixture) row(y int) string {
	w, _ := f.screen.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := f.screen.GetContent(x, y)
		b.WriteRune(r)
	}
	return b.String()
}

func TestViewport(t *testing.T) {
	v := DefaultViewport
	require.Equal(t, bpm.Position{X: 5, Y: 5}, v.Point(0, 0))

	x, y := v.Cell(bpm.Position{X: 170, Y: 80})
	require.Equal(t, [2]int{17, 8}, [2]int{x, y})

	v.Origin = bpm.Position{X: -40, Y: 20}
	for _, c := range [][2]int{{0, 0}, {3, 7}, {-2, 4}} {
		x, y := v.Cell(v.Point(c[0], c[1]))
		require.Equal(t, c, [2]int{x, y})
	}
}

func TestMouseDrawsArc(t *testing.T) {
	f := newFixture(t, true)

	// A1's port is the cell at its right edge midpoint.
	f.mouse(17, 8, tcell.Button1)
	require.Equal(t, editor.Drawing, f.surface.Mode())
	f.mouse(22, 8, tcell.Button1)
	f.mouse(22, 8, tcell.ButtonNone)
	require.Equal(t, editor.Idle, f.surface.Mode())
	f.surface.Wait()

	arcs := f.surface.Graph().ActiveArcs()
	require.Len(t, arcs, 1)
	require.Equal(t, f.a1.Endpoint(), arcs[0].Source())
	require.Equal(t, f.a2.Endpoint(), arcs[0].Target())
}

func TestMouseDragsNode(t *testing.T) {
	f := newFixture(t, true)

	f.mouse(21, 6, tcell.Button1)
	f.mouse(26, 6, tcell.Button1)
	f.mouse(31, 6, tcell.ButtonNone)
	f.surface.Wait()

	stored, err := f.store.GetActivity(context.Background(), f.pid, f.a2.ID)
	require.NoError(t, err)
	pos, _ := stored.Position()
	require.Equal(t, bpm.Position{X: 300, Y: 50}, pos)
}

func TestDraw(t *testing.T) {
	f := newFixture(t, true)
	f.app.draw()

	r, _, _, _ := f.screen.GetContent(5, 5)
	require.Equal(t, '┌', r)
	r, _, _, _ = f.screen.GetContent(17, 11)
	require.Equal(t, '┘', r)
	r, _, _, _ = f.screen.GetContent(17, 8)
	require.Equal(t, '●', r)
	require.Contains(t, f.row(8), "│A1")

	// Start event at (20, 200) is drawn with rounded corners.
	r, _, _, _ = f.screen.GetContent(2, 20)
	require.Equal(t, '╭', r)

	require.Contains(t, f.row(39), "Onboarding")
	require.Contains(t, f.row(39), "[Idle]")
}

func TestDrawInactiveWithoutPort(t *testing.T) {
	f := newFixture(t, true)
	require.True(t, f.surface.Select(f.a1.Endpoint()))
	require.False(t, f.key('d'))
	f.surface.Wait()
	f.surface.SelectNext()
	f.app.draw()

	r, _, style, _ := f.screen.GetContent(17, 8)
	require.Equal(t, '│', r)
	_, _, attrs := style.Decompose()
	require.NotZero(t, attrs&tcell.AttrDim)
}

func TestKeys(t *testing.T) {
	f := newFixture(t, true)

	require.False(t, f.key('a'))
	require.False(t, f.key('g'))
	f.surface.Wait()
	require.Len(t, f.surface.Graph().Activities(), 3)
	require.Len(t, f.surface.Graph().Gateways(), 1)

	f.mouse(17, 8, tcell.Button1)
	require.Equal(t, editor.Drawing, f.surface.Mode())
	require.False(t, f.app.handleKey(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	require.Equal(t, editor.Idle, f.surface.Mode())

	require.True(t, f.key('q'))
	require.True(t, f.app.handleKey(tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)))
}

func TestReadOnlyNotice(t *testing.T) {
	f := newFixture(t, false)

	f.key('a')
	f.surface.Wait()
	require.Equal(t, "This process is open read-only.", f.app.status)
	require.False(t, f.app.failed)
	require.Len(t, f.surface.Graph().Activities(), 2)

	f.app.draw()
	require.Contains(t, f.row(39), "read-only")
}

func TestRun(t *testing.T) {
	f := newFixture(t, true)

	done := make(chan error, 1)
	go func() { done <- f.app.Run(context.Background(), f.surface) }()
	f.screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	f.surface.Wait()
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx, f.surface) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	f.surface.Wait()
}
