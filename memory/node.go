package memory

import (
	"context"
	"sort"

	"github.com/meikuraledutech/bpm"
)

// ListActivities returns all activities of a process ordered by id.
// Returns an empty slice (not nil) if none found.
func (s *Store) ListActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activitiesOf(processID, false), nil
}

// ListActiveActivities returns the active activities of a process.
func (s *Store) ListActiveActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activitiesOf(processID, true), nil
}

func (s *Store) activitiesOf(processID int64, activeOnly bool) []bpm.Activity {
	out := []bpm.Activity{}
	for _, a := range s.activities {
		if a.ProcessID == processID && (a.Active || !activeOnly) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetActivity fetches a single activity of a process.
func (s *Store) GetActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[id]
	if !ok || a.ProcessID != processID {
		return nil, bpm.ErrActivityNotFound
	}
	return &a, nil
}

// CreateActivity stores a as a new active activity.
func (s *Store) CreateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasProcess(processID) {
		return nil, bpm.ErrProcessNotFound
	}
	if err := s.checkRole(processID, a.RoleID); err != nil {
		return nil, err
	}
	rec := *a
	rec.ID = s.next()
	rec.ProcessID = processID
	rec.Active = true
	s.activities[rec.ID] = rec
	return &rec, nil
}

// UpdateActivity replaces the editable fields of an existing activity.
// The active flag only changes through Delete and Reactivate.
func (s *Store) UpdateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.activities[a.ID]
	if !ok || cur.ProcessID != processID {
		return nil, bpm.ErrActivityNotFound
	}
	if bpm.RoleChanged(cur.RoleID, a.RoleID) {
		if err := s.checkRole(processID, a.RoleID); err != nil {
			return nil, err
		}
	}
	rec := *a
	rec.ProcessID = processID
	rec.Active = cur.Active
	s.activities[rec.ID] = rec
	return &rec, nil
}

// DeleteActivity marks an activity inactive. Deleting an inactive activity
// is a no-op. Rejected while active arcs still connect it.
func (s *Store) DeleteActivity(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok || a.ProcessID != processID {
		return bpm.ErrActivityNotFound
	}
	arcs := s.arcsOf(processID, true)
	if n := bpm.CountIncident(arcs, a.Endpoint(), true); n > 0 {
		return bpm.NodeInUse(a.Endpoint(), n)
	}
	a.Active = false
	s.activities[id] = a
	return nil
}

// ReactivateActivity marks an activity active again.
func (s *Store) ReactivateActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok || a.ProcessID != processID {
		return nil, bpm.ErrActivityNotFound
	}
	a.Active = true
	s.activities[id] = a
	return &a, nil
}

// PurgeActivity removes an activity for good. Rejected while any arc,
// active or not, still references it.
func (s *Store) PurgeActivity(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok || a.ProcessID != processID {
		return bpm.ErrActivityNotFound
	}
	if n := bpm.CountIncident(s.arcsOf(processID, false), a.Endpoint(), false); n > 0 {
		return bpm.NodeInUse(a.Endpoint(), n)
	}
	delete(s.activities, id)
	return nil
}

// ListGateways returns all gateways of a process ordered by id.
func (s *Store) ListGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gatewaysOf(processID, false), nil
}

// ListActiveGateways returns the active gateways of a process.
func (s *Store) ListActiveGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gatewaysOf(processID, true), nil
}

func (s *Store) gatewaysOf(processID int64, activeOnly bool) []bpm.Gateway {
	out := []bpm.Gateway{}
	for _, g := range s.gateways {
		if g.ProcessID == processID && (g.Active || !activeOnly) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetGateway fetches a single gateway of a process.
func (s *Store) GetGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.gateways[id]
	if !ok || g.ProcessID != processID {
		return nil, bpm.ErrGatewayNotFound
	}
	return &g, nil
}

// CreateGateway stores g as a new active gateway.
func (s *Store) CreateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasProcess(processID) {
		return nil, bpm.ErrProcessNotFound
	}
	rec := *g
	rec.ID = s.next()
	rec.ProcessID = processID
	rec.Active = true
	s.gateways[rec.ID] = rec
	return &rec, nil
}

// UpdateGateway replaces the editable fields of an existing gateway.
func (s *Store) UpdateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.gateways[g.ID]
	if !ok || cur.ProcessID != processID {
		return nil, bpm.ErrGatewayNotFound
	}
	rec := *g
	rec.ProcessID = processID
	rec.Active = cur.Active
	s.gateways[rec.ID] = rec
	return &rec, nil
}

// DeleteGateway marks a gateway inactive. Rejected while active arcs still
// connect it.
func (s *Store) DeleteGateway(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[id]
	if !ok || g.ProcessID != processID {
		return bpm.ErrGatewayNotFound
	}
	if n := bpm.CountIncident(s.arcsOf(processID, true), g.Endpoint(), true); n > 0 {
		return bpm.NodeInUse(g.Endpoint(), n)
	}
	g.Active = false
	s.gateways[id] = g
	return nil
}

// ReactivateGateway marks a gateway active again.
func (s *Store) ReactivateGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[id]
	if !ok || g.ProcessID != processID {
		return nil, bpm.ErrGatewayNotFound
	}
	g.Active = true
	s.gateways[id] = g
	return &g, nil
}

// PurgeGateway removes a gateway for good.
func (s *Store) PurgeGateway(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[id]
	if !ok || g.ProcessID != processID {
		return bpm.ErrGatewayNotFound
	}
	if n := bpm.CountIncident(s.arcsOf(processID, false), g.Endpoint(), false); n > 0 {
		return bpm.NodeInUse(g.Endpoint(), n)
	}
	delete(s.gateways, id)
	return nil
}
