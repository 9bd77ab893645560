package bpm

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Field limits enforced on every create and update.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 500
	MaxConditionLength   = 500
)

// ActivityKind is the kind of work an activity represents.
type ActivityKind string

const (
	ActivityHumanTask ActivityKind = "HUMAN_TASK"
	ActivityAutomatic ActivityKind = "AUTOMATIC"
	ActivityManual    ActivityKind = "MANUAL"
)

// Valid reports whether k is one of the known activity kinds.
func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityHumanTask, ActivityAutomatic, ActivityManual:
		return true
	}
	return false
}

// GatewayKind is the branching semantics of a gateway.
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "EXCLUSIVE"
	GatewayInclusive GatewayKind = "INCLUSIVE"
	GatewayParallel  GatewayKind = "PARALLEL"
)

// Valid reports whether k is one of the known gateway kinds.
func (k GatewayKind) Valid() bool {
	switch k {
	case GatewayExclusive, GatewayInclusive, GatewayParallel:
		return true
	}
	return false
}

// ProcessState is the lifecycle state of a process.
type ProcessState string

const (
	ProcessDraft     ProcessState = "DRAFT"
	ProcessPublished ProcessState = "PUBLISHED"
)

// Position is a 2D diagram coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p translated by -o.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Activity is a task node of a process.
// X and Y are nil for records that were never placed.
type Activity struct {
	ID          int64        `json:"id,omitempty"`
	ProcessID   int64        `json:"processId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Kind        ActivityKind `json:"kind"`
	RoleID      *int64       `json:"responsibleRoleId,omitempty"`
	Active      bool         `json:"active"`
	X           *float64     `json:"x,omitempty"`
	Y           *float64     `json:"y,omitempty"`
}

// Endpoint returns the arc endpoint addressing a.
func (a Activity) Endpoint() Endpoint {
	return Endpoint{Kind: KindActivity, ID: a.ID}
}

// Position returns the persisted position, if both coordinates are present.
func (a Activity) Position() (Position, bool) {
	return position(a.X, a.Y)
}

// SetPosition stores p on the record.
func (a *Activity) SetPosition(p Position) {
	a.X, a.Y = coords(p)
}

// Validate checks the fields a caller controls.
func (a Activity) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if err := validateText("description", a.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown activity kind %q", ErrInvalid, a.Kind)
	}
	return nil
}

// Gateway is a branching or merging node of a process.
type Gateway struct {
	ID          int64       `json:"id,omitempty"`
	ProcessID   int64       `json:"processId"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Kind        GatewayKind `json:"kind"`
	Active      bool        `json:"active"`
	X           *float64    `json:"x,omitempty"`
	Y           *float64    `json:"y,omitempty"`
}

// Endpoint returns the arc endpoint addressing g.
func (g Gateway) Endpoint() Endpoint {
	return Endpoint{Kind: KindGateway, ID: g.ID}
}

// Position returns the persisted position, if both coordinates are present.
func (g Gateway) Position() (Position, bool) {
	return position(g.X, g.Y)
}

// SetPosition stores p on the record.
func (g *Gateway) SetPosition(p Position) {
	g.X, g.Y = coords(p)
}

// Validate checks the fields a caller controls.
func (g Gateway) Validate() error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	if err := validateText("description", g.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if !g.Kind.Valid() {
		return fmt.Errorf("%w: unknown gateway kind %q", ErrInvalid, g.Kind)
	}
	return nil
}

// Arc is a directed connector between two endpoints of the same process.
// Endpoints are addressed by (kind, id) because ids are only unique per kind.
type Arc struct {
	ID         int64    `json:"id,omitempty"`
	ProcessID  int64    `json:"processId"`
	SourceKind NodeKind `json:"sourceKind"`
	SourceID   int64    `json:"sourceId"`
	TargetKind NodeKind `json:"targetKind"`
	TargetID   int64    `json:"targetId"`
	Condition  string   `json:"condition,omitempty"`
	Active     bool     `json:"active"`
}

// NewArc returns an active, unconditional arc from source to target.
func NewArc(processID int64, source, target Endpoint) Arc {
	return Arc{
		ProcessID:  processID,
		SourceKind: source.Kind,
		SourceID:   source.ID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		Active:     true,
	}
}

// Source returns the origin endpoint.
func (a Arc) Source() Endpoint {
	return Endpoint{Kind: a.SourceKind, ID: a.SourceID}
}

// Target returns the destination endpoint.
func (a Arc) Target() Endpoint {
	return Endpoint{Kind: a.TargetKind, ID: a.TargetID}
}

// Touches reports whether ep is either end of the arc.
func (a Arc) Touches(ep Endpoint) bool {
	return a.Source() == ep || a.Target() == ep
}

// Validate checks endpoint shape, arc direction and the condition length.
// It does not check that the endpoints exist; only a store can.
func (a Arc) Validate() error {
	src, dst := a.Source(), a.Target()
	if !src.Valid() {
		return fmt.Errorf("%w: invalid source %s", ErrInvalid, src)
	}
	if !dst.Valid() {
		return fmt.Errorf("%w: invalid target %s", ErrInvalid, dst)
	}
	if src == dst {
		return ErrSelfLoop
	}
	if !src.CanSource() {
		return Rejected(http.StatusUnprocessableEntity, ErrInvalid, "the end event cannot be the origin of an arc")
	}
	if !dst.CanTarget() {
		return Rejected(http.StatusUnprocessableEntity, ErrInvalid, "the start event cannot be the destination of an arc")
	}
	return validateText("condition", a.Condition, MaxConditionLength)
}

// Process is the container of one diagram. The element collections are
// only populated when the process is loaded as an editing context.
type Process struct {
	ID          int64        `json:"id,omitempty"`
	TenantID    int64        `json:"tenantId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	State       ProcessState `json:"state"`
	Active      bool         `json:"active"`
	Activities  []Activity   `json:"activities,omitempty"`
	Gateways    []Gateway    `json:"gateways,omitempty"`
	Arcs        []Arc        `json:"arcs,omitempty"`
}

// Validate checks the fields a caller controls.
func (p Process) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := validateText("description", p.Description, MaxDescriptionLength); err != nil {
		return err
	}
	switch p.State {
	case ProcessDraft, ProcessPublished:
		return nil
	}
	return fmt.Errorf("%w: unknown process state %q", ErrInvalid, p.State)
}

// Role is a tenant-scoped responsibility an activity can be assigned to.
type Role struct {
	ID          int64  `json:"id,omitempty"`
	TenantID    int64  `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return validateText("name", name, MaxNameLength)
}

func validateText(field, s string, max int) error {
	if utf8.RuneCountInString(s) > max {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalid, field, max)
	}
	return nil
}

func position(x, y *float64) (Position, bool) {
	if x == nil || y == nil {
		return Position{}, false
	}
	return Position{X: *x, Y: *y}, true
}

func coords(p Position) (*float64, *float64) {
	x, y := p.X, p.Y
	return &x, &y
}
