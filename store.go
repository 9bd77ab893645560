package bpm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProcessNotFound  = errors.New("bpm: process not found")
	ErrActivityNotFound = errors.New("bpm: activity not found")
	ErrGatewayNotFound  = errors.New("bpm: gateway not found")
	ErrArcNotFound      = errors.New("bpm: arc not found")

	ErrInvalid         = errors.New("bpm: invalid element")
	ErrSelfLoop        = errors.New("bpm: arc source and target are the same node")
	ErrUnknownEndpoint = errors.New("bpm: arc endpoint is not an active node of the process")
	ErrNodeInUse       = errors.New("bpm: node has incident arcs")

	// ErrUnavailable wraps transport failures talking to a remote store.
	ErrUnavailable = errors.New("bpm: store unavailable")
)

// RejectionError is a store refusal carrying a business reason meant to be
// shown to the user as is.
type RejectionError struct {
	Status  int
	Message string
	Cause   error
}

func (e *RejectionError) Error() string {
	return e.Message
}

func (e *RejectionError) Unwrap() error {
	return e.Cause
}

// Rejected wraps cause into a RejectionError with a user-facing message.
func Rejected(status int, cause error, format string, args ...any) *RejectionError {
	return &RejectionError{
		Status:  status,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Store defines the contract of the remote-authoritative element store.
// Every element operation is scoped to its owning process.
type Store interface {
	// Processes
	CreateProcess(ctx context.Context, p *Process) (*Process, error)
	GetProcess(ctx context.Context, tenantID, processID int64) (*Process, error)

	// Roles
	CreateRole(ctx context.Context, r *Role) (*Role, error)
	ListRoles(ctx context.Context, tenantID int64) ([]Role, error)

	ActivityStore
	GatewayStore
	ArcStore
}

// ActivityStore persists activities.
type ActivityStore interface {
	ListActivities(ctx context.Context, processID int64) ([]Activity, error)
	ListActiveActivities(ctx context.Context, processID int64) ([]Activity, error)
	GetActivity(ctx context.Context, processID, id int64) (*Activity, error)
	CreateActivity(ctx context.Context, processID int64, a *Activity) (*Activity, error)
	UpdateActivity(ctx context.Context, processID int64, a *Activity) (*Activity, error)
	DeleteActivity(ctx context.Context, processID, id int64) error
	ReactivateActivity(ctx context.Context, processID, id int64) (*Activity, error)
	PurgeActivity(ctx context.Context, processID, id int64) error
}

// GatewayStore persists gateways.
type GatewayStore interface {
	ListGateways(ctx context.Context, processID int64) ([]Gateway, error)
	ListActiveGateways(ctx context.Context, processID int64) ([]Gateway, error)
	GetGateway(ctx context.Context, processID, id int64) (*Gateway, error)
	CreateGateway(ctx context.Context, processID int64, g *Gateway) (*Gateway, error)
	UpdateGateway(ctx context.Context, processID int64, g *Gateway) (*Gateway, error)
	DeleteGateway(ctx context.Context, processID, id int64) error
	ReactivateGateway(ctx context.Context, processID, id int64) (*Gateway, error)
	PurgeGateway(ctx context.Context, processID, id int64) error
}

// ArcStore persists arcs.
type ArcStore interface {
	ListArcs(ctx context.Context, processID int64) ([]Arc, error)
	ListActiveArcs(ctx context.Context, processID int64) ([]Arc, error)
	GetArc(ctx context.Context, processID, id int64) (*Arc, error)
	CreateArc(ctx context.Context, processID int64, a *Arc) (*Arc, error)
	UpdateArc(ctx context.Context, processID int64, a *Arc) (*Arc, error)
	DeleteArc(ctx context.Context, processID, id int64) error
	ReactivateArc(ctx context.Context, processID, id int64) (*Arc, error)
	PurgeArc(ctx context.Context, processID, id int64) error
}

var codes = map[string]error{
	"PROCESS_NOT_FOUND":  ErrProcessNotFound,
	"ACTIVITY_NOT_FOUND": ErrActivityNotFound,
	"GATEWAY_NOT_FOUND":  ErrGatewayNotFound,
	"ARC_NOT_FOUND":      ErrArcNotFound,
	"INVALID":            ErrInvalid,
	"SELF_LOOP":          ErrSelfLoop,
	"UNKNOWN_ENDPOINT":   ErrUnknownEndpoint,
	"NODE_IN_USE":        ErrNodeInUse,
}

var explanations = []struct {
	sentinel error
	text     string
}{
	{ErrProcessNotFound, "The process no longer exists."},
	{ErrActivityNotFound, "The activity no longer exists."},
	{ErrGatewayNotFound, "The gateway no longer exists."},
	{ErrArcNotFound, "The arc no longer exists."},
	{ErrSelfLoop, "A node cannot be connected to itself."},
}

// Explain returns the text shown to a user for err. Rejections keep their
// own message and invalid input keeps its detail without the package prefix.
func Explain(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Message
	}
	for _, e := range explanations {
		if errors.Is(err, e.sentinel) {
			return e.text
		}
	}
	if errors.Is(err, ErrInvalid) {
		return strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": ")
	}
	return err.Error()
}

// Code returns the wire code of the sentinel err wraps, or "" if none.
func Code(err error) string {
	for code, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ErrorForCode returns the sentinel for a wire code, or nil if unknown.
func ErrorForCode(code string) error {
	return codes[code]
}
