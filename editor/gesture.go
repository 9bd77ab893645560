package editor

import (
	"fmt"

	"github.com/meikuraledutech/bpm"
)

// GestureState is the state of the arc-drawing gesture.
type GestureState int

const (
	Idle GestureState = iota
	Drawing
)

func (s GestureState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Drawing:
		return "Drawing"
	default:
		return fmt.Sprintf("GestureState(%d)", int(s))
	}
}

// Connection is the outcome of a committed gesture.
type Connection struct {
	Source bpm.Endpoint
	Target bpm.Endpoint
}

// Gesture is the two-state machine behind drag-from-port arc drawing.
// Its origin and cursor only exist while Drawing.
type Gesture struct {
	state  GestureState
	origin bpm.Endpoint
	cursor bpm.Position
}

// State returns the current state.
func (g *Gesture) State() GestureState { return g.state }

// Origin returns the node the gesture started from, while Drawing.
func (g *Gesture) Origin() (bpm.Endpoint, bool) {
	return g.origin, g.state == Drawing
}

// Cursor returns the live end of the rubber-band line, while Drawing.
func (g *Gesture) Cursor() (bpm.Position, bool) {
	return g.cursor, g.state == Drawing
}

// Begin starts drawing from origin. A Begin while already Drawing is
// ignored and reports false.
func (g *Gesture) Begin(origin bpm.Endpoint, at bpm.Position) bool {
	if g.state == Drawing {
		return false
	}
	g.state = Drawing
	g.origin = origin
	g.cursor = at
	return true
}

// Move updates the rubber-band cursor.
func (g *Gesture) Move(at bpm.Position) {
	if g.state == Drawing {
		g.cursor = at
	}
}

// Release ends the gesture over target, or over empty canvas when target
// is nil. It returns the connection to create; ok is false when the gesture
// was not drawing, ended off any node, or would connect a node to itself.
func (g *Gesture) Release(target *bpm.Endpoint) (c Connection, ok bool) {
	if g.state != Drawing {
		return Connection{}, false
	}
	origin := g.origin
	g.reset()
	if target == nil || *target == origin {
		return Connection{}, false
	}
	return Connection{Source: origin, Target: *target}, true
}

// Cancel abandons the gesture.
func (g *Gesture) Cancel() {
	g.reset()
}

func (g *Gesture) reset() {
	*g = Gesture{}
}
