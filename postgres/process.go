package postgres

import (
	"context"
	"fmt"

	"github.com/meikuraledutech/bpm"
)

// CreateProcess inserts a process. An empty state means draft.
func (s *PGStore) CreateProcess(ctx context.Context, p *bpm.Process) (*bpm.Process, error) {
	rec := *p
	rec.Activities, rec.Gateways, rec.Arcs = nil, nil, nil
	if rec.State == "" {
		rec.State = bpm.ProcessDraft
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO bpm_processes (tenant_id, name, description, category, state, active)
		 VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING id`,
		rec.TenantID, rec.Name, rec.Description, rec.Category, string(rec.State),
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("bpm: insert process: %w", err)
	}
	rec.Active = true
	return &rec, nil
}

// GetProcess fetches a process of a tenant together with all of its
// activities, gateways and arcs.
func (s *PGStore) GetProcess(ctx context.Context, tenantID, processID int64) (*bpm.Process, error) {
	var (
		p     bpm.Process
		state string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, category, state, active
		   FROM bpm_processes WHERE id = $1 AND tenant_id = $2`,
		processID, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Category, &state, &p.Active)
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrProcessNotFound
		}
		return nil, fmt.Errorf("bpm: get process: %w", err)
	}
	p.State = bpm.ProcessState(state)

	if p.Activities, err = listActivities(ctx, s.db, processID, false); err != nil {
		return nil, err
	}
	if p.Gateways, err = listGateways(ctx, s.db, processID, false); err != nil {
		return nil, err
	}
	if p.Arcs, err = listArcs(ctx, s.db, processID, false); err != nil {
		return nil, err
	}
	return &p, nil
}

// processExists checks that a process row exists and locks it against
// concurrent deletion.
func processExists(ctx context.Context, q querier, processID int64) error {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM bpm_processes WHERE id = $1 FOR SHARE`, processID,
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return bpm.ErrProcessNotFound
		}
		return fmt.Errorf("bpm: get process: %w", err)
	}
	return nil
}

// checkRole requires roleID, when set, to name an active role of the tenant
// owning processID.
func checkRole(ctx context.Context, q querier, processID int64, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	var ok bool
	err := q.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM bpm_roles r
    JOIN bpm_processes p ON p.tenant_id = r.tenant_id
   WHERE r.id = $1 AND p.id = $2 AND r.active)`,
		*roleID, processID,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("bpm: check role: %w", err)
	}
	if !ok {
		return bpm.InvalidRole(*roleID)
	}
	return nil
}

// CreateRole inserts a role.
func (s *PGStore) CreateRole(ctx context.Context, r *bpm.Role) (*bpm.Role, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", bpm.ErrInvalid)
	}
	rec := *r
	err := s.db.QueryRow(ctx,
		`INSERT INTO bpm_roles (tenant_id, name, description, active)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		rec.TenantID, rec.Name, rec.Description, rec.Active,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("bpm: insert role: %w", err)
	}
	return &rec, nil
}

// ListRoles returns all roles of a tenant ordered by id.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListRoles(ctx context.Context, tenantID int64) ([]bpm.Role, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, active
		   FROM bpm_roles WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("bpm: list roles: %w", err)
	}
	defer rows.Close()

	roles := []bpm.Role{}
	for rows.Next() {
		var r bpm.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Description, &r.Active); err != nil {
			return nil, fmt.Errorf("bpm: scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}
