package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/bpm"
)

const activityColumns = `id, process_id, name, description, kind, role_id, active, x, y`

func scanActivity(row pgx.Row) (bpm.Activity, error) {
	var (
		a    bpm.Activity
		kind string
	)
	err := row.Scan(&a.ID, &a.ProcessID, &a.Name, &a.Description, &kind, &a.RoleID, &a.Active, &a.X, &a.Y)
	a.Kind = bpm.ActivityKind(kind)
	return a, err
}

func listActivities(ctx context.Context, q querier, processID int64, activeOnly bool) ([]bpm.Activity, error) {
	rows, err := q.Query(ctx,
		`SELECT `+activityColumns+` FROM bpm_activities
		  WHERE process_id = $1 AND (active OR NOT $2) ORDER BY id`,
		processID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("bpm: list activities: %w", err)
	}
	defer rows.Close()

	out := []bpm.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("bpm: scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListActivities returns all activities of a process ordered by id.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	return listActivities(ctx, s.db, processID, false)
}

// ListActiveActivities returns the active activities of a process.
func (s *PGStore) ListActiveActivities(ctx context.Context, processID int64) ([]bpm.Activity, error) {
	return listActivities(ctx, s.db, processID, true)
}

// GetActivity fetches a single activity of a process.
func (s *PGStore) GetActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	a, err := scanActivity(s.db.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM bpm_activities WHERE id = $1 AND process_id = $2`,
		id, processID))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrActivityNotFound
		}
		return nil, fmt.Errorf("bpm: get activity: %w", err)
	}
	return &a, nil
}

// CreateActivity inserts a as a new active activity.
func (s *PGStore) CreateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	var out bpm.Activity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := processExists(ctx, tx, processID); err != nil {
			return err
		}
		if err := checkRole(ctx, tx, processID, a.RoleID); err != nil {
			return err
		}
		var err error
		out, err = scanActivity(tx.QueryRow(ctx,
			`INSERT INTO bpm_activities (process_id, name, description, kind, role_id, active, x, y)
			 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7) RETURNING `+activityColumns,
			processID, a.Name, a.Description, string(a.Kind), a.RoleID, a.X, a.Y))
		if err != nil {
			return fmt.Errorf("bpm: insert activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateActivity replaces the editable fields of an existing activity.
// The active flag only changes through Delete and Reactivate.
func (s *PGStore) UpdateActivity(ctx context.Context, processID int64, a *bpm.Activity) (*bpm.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	var out bpm.Activity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var cur *int64
		err := tx.QueryRow(ctx,
			`SELECT role_id FROM bpm_activities WHERE id = $1 AND process_id = $2 FOR UPDATE`,
			a.ID, processID,
		).Scan(&cur)
		if err != nil {
			if isNoRows(err) {
				return bpm.ErrActivityNotFound
			}
			return fmt.Errorf("bpm: get activity: %w", err)
		}
		if bpm.RoleChanged(cur, a.RoleID) {
			if err := checkRole(ctx, tx, processID, a.RoleID); err != nil {
				return err
			}
		}

		out, err = scanActivity(tx.QueryRow(ctx,
			`UPDATE bpm_activities
			    SET name = $3, description = $4, kind = $5, role_id = $6, x = $7, y = $8, updated_at = NOW()
			  WHERE id = $1 AND process_id = $2
			  RETURNING `+activityColumns,
			a.ID, processID, a.Name, a.Description, string(a.Kind), a.RoleID, a.X, a.Y))
		if err != nil {
			return fmt.Errorf("bpm: update activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteActivity marks an activity inactive. Deleting an inactive activity
// is a no-op. Rejected while active arcs still connect it.
func (s *PGStore) DeleteActivity(ctx context.Context, processID, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return deactivate(ctx, tx, "bpm_activities", bpm.Endpoint{Kind: bpm.KindActivity, ID: id}, processID, bpm.ErrActivityNotFound)
	})
}

// ReactivateActivity marks an activity active again.
func (s *PGStore) ReactivateActivity(ctx context.Context, processID, id int64) (*bpm.Activity, error) {
	out, err := scanActivity(s.db.QueryRow(ctx,
		`UPDATE bpm_activities SET active = TRUE, updated_at = NOW()
		  WHERE id = $1 AND process_id = $2 RETURNING `+activityColumns,
		id, processID))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrActivityNotFound
		}
		return nil, fmt.Errorf("bpm: reactivate activity: %w", err)
	}
	return &out, nil
}

// PurgeActivity removes an activity for good. Rejected while any arc,
// active or not, still references it.
func (s *PGStore) PurgeActivity(ctx context.Context, processID, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return purge(ctx, tx, "bpm_activities", bpm.Endpoint{Kind: bpm.KindActivity, ID: id}, processID, bpm.ErrActivityNotFound)
	})
}

// deactivate soft-deletes the node row at ep after checking that no active
// arc still connects it. table is one of the node tables.
func deactivate(ctx context.Context, tx pgx.Tx, table string, ep bpm.Endpoint, processID int64, notFound error) error {
	var active bool
	err := tx.QueryRow(ctx,
		`SELECT active FROM `+table+` WHERE id = $1 AND process_id = $2 FOR UPDATE`,
		ep.ID, processID,
	).Scan(&active)
	if err != nil {
		if isNoRows(err) {
			return notFound
		}
		return fmt.Errorf("bpm: lock %s: %w", ep.Kind, err)
	}
	n, err := incidentArcs(ctx, tx, processID, ep, true)
	if err != nil {
		return fmt.Errorf("bpm: count arcs: %w", err)
	}
	if n > 0 {
		return bpm.NodeInUse(ep, n)
	}
	if !active {
		return nil
	}
	_, err = tx.Exec(ctx,
		`UPDATE `+table+` SET active = FALSE, updated_at = NOW() WHERE id = $1`, ep.ID)
	if err != nil {
		return fmt.Errorf("bpm: deactivate %s: %w", ep.Kind, err)
	}
	return nil
}

// purge hard-deletes the node row at ep once no arc at all references it.
func purge(ctx context.Context, tx pgx.Tx, table string, ep bpm.Endpoint, processID int64, notFound error) error {
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM `+table+` WHERE id = $1 AND process_id = $2 FOR UPDATE`,
		ep.ID, processID,
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return notFound
		}
		return fmt.Errorf("bpm: lock %s: %w", ep.Kind, err)
	}
	n, err := incidentArcs(ctx, tx, processID, ep, false)
	if err != nil {
		return fmt.Errorf("bpm: count arcs: %w", err)
	}
	if n > 0 {
		return bpm.NodeInUse(ep, n)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, ep.ID); err != nil {
		return fmt.Errorf("bpm: delete %s: %w", ep.Kind, err)
	}
	return nil
}
