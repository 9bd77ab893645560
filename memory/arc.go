package memory

import (
	"context"
	"sort"

	"github.com/meikuraledutech/bpm"
)

// ListArcs returns all arcs of a process ordered by id.
func (s *Store) ListArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arcsOf(processID, false), nil
}

// ListActiveArcs returns the active arcs of a process.
func (s *Store) ListActiveArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arcsOf(processID, true), nil
}

func (s *Store) arcsOf(processID int64, activeOnly bool) []bpm.Arc {
	out := []bpm.Arc{}
	for _, a := range s.arcs {
		if a.ProcessID == processID && (a.Active || !activeOnly) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetArc fetches a single arc of a process.
func (s *Store) GetArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.arcs[id]
	if !ok || a.ProcessID != processID {
		return nil, bpm.ErrArcNotFound
	}
	return &a, nil
}

// CreateArc stores a as a new active arc after checking both endpoints.
func (s *Store) CreateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasProcess(processID) {
		return nil, bpm.ErrProcessNotFound
	}
	if err := bpm.CheckArc(*a, s.active(processID)); err != nil {
		return nil, err
	}
	rec := *a
	rec.ID = s.next()
	rec.ProcessID = processID
	rec.Active = true
	s.arcs[rec.ID] = rec
	return &rec, nil
}

// UpdateArc replaces endpoints and condition of an existing arc.
func (s *Store) UpdateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.arcs[a.ID]
	if !ok || cur.ProcessID != processID {
		return nil, bpm.ErrArcNotFound
	}
	if err := bpm.CheckArc(*a, s.active(processID)); err != nil {
		return nil, err
	}
	rec := *a
	rec.ProcessID = processID
	rec.Active = cur.Active
	s.arcs[rec.ID] = rec
	return &rec, nil
}

// DeleteArc marks an arc inactive. Deleting an inactive arc is a no-op.
func (s *Store) DeleteArc(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arcs[id]
	if !ok || a.ProcessID != processID {
		return bpm.ErrArcNotFound
	}
	a.Active = false
	s.arcs[id] = a
	return nil
}

// ReactivateArc marks an arc active again. Both endpoints must still be
// active nodes.
func (s *Store) ReactivateArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.arcs[id]
	if !ok || a.ProcessID != processID {
		return nil, bpm.ErrArcNotFound
	}
	if err := bpm.CheckArc(a, s.active(processID)); err != nil {
		return nil, err
	}
	a.Active = true
	s.arcs[id] = a
	return &a, nil
}

// PurgeArc removes an arc for good. No error if it doesn't exist.
func (s *Store) PurgeArc(ctx context.Context, processID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.arcs[id]; ok && a.ProcessID == processID {
		delete(s.arcs, id)
	}
	return nil
}
