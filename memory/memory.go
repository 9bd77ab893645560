// Package memory implements bpm.Store in process memory. It enforces the
// same referential rules as the postgres store and backs tests, demos and
// the server's STORE=memory mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meikuraledutech/bpm"
)

// Store implements bpm.Store using maps guarded by a RWMutex.
type Store struct {
	mu  sync.RWMutex
	seq int64

	processes  map[int64]bpm.Process
	roles      map[int64]bpm.Role
	activities map[int64]bpm.Activity
	gateways   map[int64]bpm.Gateway
	arcs       map[int64]bpm.Arc
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		processes:  make(map[int64]bpm.Process),
		roles:      make(map[int64]bpm.Role),
		activities: make(map[int64]bpm.Activity),
		gateways:   make(map[int64]bpm.Gateway),
		arcs:       make(map[int64]bpm.Arc),
	}
}

var _ bpm.Store = (*Store)(nil)

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

// CreateProcess stores p with a generated id. An empty state means draft.
func (s *Store) CreateProcess(ctx context.Context, p *bpm.Process) (*bpm.Process, error) {
	rec := *p
	rec.Activities, rec.Gateways, rec.Arcs = nil, nil, nil
	if rec.State == "" {
		rec.State = bpm.ProcessDraft
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.next()
	rec.Active = true
	s.processes[rec.ID] = rec
	return &rec, nil
}

// GetProcess returns the process with its activities, gateways and arcs.
func (s *Store) GetProcess(ctx context.Context, tenantID, processID int64) (*bpm.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.processes[processID]
	if !ok || p.TenantID != tenantID {
		return nil, bpm.ErrProcessNotFound
	}
	p.Activities = s.activitiesOf(processID, false)
	p.Gateways = s.gatewaysOf(processID, false)
	p.Arcs = s.arcsOf(processID, false)
	return &p, nil
}

// CreateRole stores r with a generated id.
func (s *Store) CreateRole(ctx context.Context, r *bpm.Role) (*bpm.Role, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", bpm.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *r
	rec.ID = s.next()
	s.roles[rec.ID] = rec
	return &rec, nil
}

// ListRoles returns the roles of a tenant ordered by id.
func (s *Store) ListRoles(ctx context.Context, tenantID int64) ([]bpm.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := []bpm.Role{}
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (s *Store) hasProcess(processID int64) bool {
	_, ok := s.processes[processID]
	return ok
}

// checkRole requires roleID, when set, to name an active role of the tenant
// owning processID. Callers hold at least a read lock.
func (s *Store) checkRole(processID int64, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	r, ok := s.roles[*roleID]
	if !ok || !r.Active || r.TenantID != s.processes[processID].TenantID {
		return bpm.InvalidRole(*roleID)
	}
	return nil
}

// active reports whether ep is an active node of processID.
// Callers hold at least a read lock.
func (s *Store) active(processID int64) func(bpm.Endpoint) bool {
	return func(ep bpm.Endpoint) bool {
		switch ep.Kind {
		case bpm.KindActivity:
			a, ok := s.activities[ep.ID]
			return ok && a.ProcessID == processID && a.Active
		case bpm.KindGateway:
			g, ok := s.gateways[ep.ID]
			return ok && g.ProcessID == processID && g.Active
		case bpm.KindStartEvent, bpm.KindEndEvent:
			return true
		}
		return false
	}
}
