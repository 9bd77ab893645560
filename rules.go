package bpm

import (
	"fmt"
	"net/http"
	"strings"
)

// CheckArc validates a against the active nodes of its process.
// active reports whether an activity or gateway endpoint is an active node;
// pseudo-events are always resolvable.
func CheckArc(a Arc, active func(Endpoint) bool) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for _, ep := range []Endpoint{a.Source(), a.Target()} {
		if ep.Kind.Persisted() && !active(ep) {
			return Rejected(http.StatusUnprocessableEntity, ErrUnknownEndpoint,
				"%s %d is not an active node of this process", noun(ep.Kind), ep.ID)
		}
	}
	return nil
}

// CountIncident returns how many arcs touch ep, optionally only active ones.
func CountIncident(arcs []Arc, ep Endpoint, activeOnly bool) int {
	n := 0
	for _, a := range arcs {
		if activeOnly && !a.Active {
			continue
		}
		if a.Touches(ep) {
			n++
		}
	}
	return n
}

// NodeInUse is the rejection returned when ep still has n incident arcs.
func NodeInUse(ep Endpoint, n int) error {
	return Rejected(http.StatusConflict, ErrNodeInUse,
		"%s %d cannot be removed while %d arc(s) still connect it", noun(ep.Kind), ep.ID, n)
}

// InvalidRole is the rejection returned when an activity names a role that
// is missing, inactive or owned by another tenant.
func InvalidRole(id int64) error {
	return Rejected(http.StatusUnprocessableEntity, ErrInvalid,
		"role %d is not an active role of this tenant", id)
}

// RoleChanged reports whether an update moves an activity from role cur to
// role next. Keeping a role that has since been deactivated is allowed.
func RoleChanged(cur, next *int64) bool {
	if cur == nil || next == nil {
		return cur != next
	}
	return *cur != *next
}

func noun(k NodeKind) string {
	switch k {
	case KindActivity, KindGateway:
		return strings.ToLower(string(k))
	case KindStartEvent:
		return "start event"
	case KindEndEvent:
		return "end event"
	}
	return fmt.Sprintf("node %q", k)
}
