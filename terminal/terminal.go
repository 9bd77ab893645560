// Package terminal drives an editor.Surface from a tcell screen.
package terminal

import (
	"context"
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/editor"
)

// Viewport maps screen cells to diagram units. Cell (0,0) covers the
// rectangle starting at Origin.
type Viewport struct {
	Origin bpm.Position
	CellW  float64
	CellH  float64
}

// DefaultViewport shows the diagram at ten units per cell.
var DefaultViewport = Viewport{CellW: 10, CellH: 10}

// Point returns the diagram position at the centre of a cell.
func (v Viewport) Point(x, y int) bpm.Position {
	return bpm.Position{
		X: v.Origin.X + (float64(x)+0.5)*v.CellW,
		Y: v.Origin.Y + (float64(y)+0.5)*v.CellH,
	}
}

// Cell returns the cell covering p.
func (v Viewport) Cell(p bpm.Position) (x, y int) {
	return int(math.Floor((p.X - v.Origin.X) / v.CellW)),
		int(math.Floor((p.Y - v.Origin.Y) / v.CellH))
}

// Options configures New.
type Options struct {
	Logger   *zap.Logger
	Viewport Viewport
}

// App is the terminal front-end. It also serves as the surface's Notifier.
type App struct {
	screen tcell.Screen
	view   Viewport
	logger *zap.Logger

	surface *editor.Surface
	status  string
	failed  bool
	pressed bool
}

// New returns an App drawing on an initialised screen.
func New(screen tcell.Screen, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Viewport == (Viewport{}) {
		opts.Viewport = DefaultViewport
	}
	return &App{screen: screen, view: opts.Viewport, logger: opts.Logger}
}

// Notify shows n on the status line.
func (a *App) Notify(n editor.Notice) {
	a.status = n.Message
	a.failed = n.Level == editor.NoticeError
}

// Run loads the surface and processes events until the user quits or ctx
// is done.
func (a *App) Run(ctx context.Context, s *editor.Surface) error {
	a.surface = s
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-s.Ready():
				a.screen.PostEvent(tcell.NewEventInterrupt(nil))
			case <-ctx.Done():
				a.screen.PostEvent(tcell.NewEventInterrupt(ctx.Err()))
				return
			case <-done:
				return
			}
		}
	}()

	a.status = "Loading…"
	s.Load()
	for {
		a.draw()
		a.screen.Show()

		switch ev := a.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			if err, ok := ev.Data().(error); ok {
				return err
			}
			if a.surface.Pump() > 0 && a.status == "Loading…" {
				a.status = ""
			}
		case *tcell.EventResize:
			a.screen.Sync()
		case *tcell.EventKey:
			if a.handleKey(ev) {
				return nil
			}
		case *tcell.EventMouse:
			a.handleMouse(ev)
		}
	}
}

func (a *App) handleKey(ev *tcell.EventKey) (quit bool) {
	s := a.surface
	switch ev.Key() {
	case tcell.KeyCtrlC:
		return true
	case tcell.KeyEscape:
		s.Cancel()
	case tcell.KeyTab:
		s.SelectNext()
	case tcell.KeyDelete:
		s.DeleteSelected()
	case tcell.KeyF5:
		s.Refresh()
	case tcell.KeyLeft:
		a.view.Origin.X -= 4 * a.view.CellW
	case tcell.KeyRight:
		a.view.Origin.X += 4 * a.view.CellW
	case tcell.KeyUp:
		a.view.Origin.Y -= 2 * a.view.CellH
	case tcell.KeyDown:
		a.view.Origin.Y += 2 * a.view.CellH
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 'a':
			s.AddActivity("New activity", bpm.ActivityHumanTask)
		case 'g':
			s.AddGateway("New gateway", bpm.GatewayExclusive)
		case 'd':
			s.DeleteSelected()
		case 'r':
			s.ReactivateSelected()
		case 'X':
			s.PurgeSelected()
		}
	}
	a.logger.Debug("key", zap.String("key", ev.Name()))
	return false
}

// handleMouse turns tcell's button snapshots into pointer transitions.
func (a *App) handleMouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	at := a.view.Point(x, y)
	down := ev.Buttons()&tcell.Button1 != 0

	switch {
	case down && !a.pressed:
		a.pressed = true
		a.surface.PointerDown(at)
	case down:
		a.surface.PointerMove(at)
	case a.pressed:
		a.pressed = false
		a.surface.PointerMove(at)
		a.surface.PointerUp(at)
	default:
		a.surface.PointerMove(at)
	}
}

func (a *App) statusLine(sc editor.Scene) string {
	title := sc.Title
	if title == "" {
		title = "(no process)"
	}
	line := fmt.Sprintf(" %s  [%s]", title, sc.Mode)
	if sc.ReadOnly {
		line += " read-only"
	}
	if a.status != "" {
		line += "  " + a.status
	}
	return line
}
