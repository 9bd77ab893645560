package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/bpm"
)

const arcColumns = `id, process_id, source_kind, source_id, target_kind, target_id, condition, active`

func scanArc(row pgx.Row) (bpm.Arc, error) {
	var (
		a                bpm.Arc
		srcKind, dstKind string
	)
	err := row.Scan(&a.ID, &a.ProcessID, &srcKind, &a.SourceID, &dstKind, &a.TargetID, &a.Condition, &a.Active)
	a.SourceKind, a.TargetKind = bpm.NodeKind(srcKind), bpm.NodeKind(dstKind)
	return a, err
}

func listArcs(ctx context.Context, q querier, processID int64, activeOnly bool) ([]bpm.Arc, error) {
	rows, err := q.Query(ctx,
		`SELECT `+arcColumns+` FROM bpm_arcs
		  WHERE process_id = $1 AND (active OR NOT $2) ORDER BY id`,
		processID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("bpm: list arcs: %w", err)
	}
	defer rows.Close()

	out := []bpm.Arc{}
	for rows.Next() {
		a, err := scanArc(rows)
		if err != nil {
			return nil, fmt.Errorf("bpm: scan arc: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// checkArc resolves both endpoints inside tx and applies bpm.CheckArc.
func checkArc(ctx context.Context, tx pgx.Tx, processID int64, a bpm.Arc) error {
	if err := a.Validate(); err != nil {
		return err
	}
	active, err := activeEndpoints(ctx, tx, processID, a.Source(), a.Target())
	if err != nil {
		return fmt.Errorf("bpm: resolve endpoints: %w", err)
	}
	return bpm.CheckArc(a, func(ep bpm.Endpoint) bool { return active[ep] })
}

// ListArcs returns all arcs of a process ordered by id.
func (s *PGStore) ListArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	return listArcs(ctx, s.db, processID, false)
}

// ListActiveArcs returns the active arcs of a process.
func (s *PGStore) ListActiveArcs(ctx context.Context, processID int64) ([]bpm.Arc, error) {
	return listArcs(ctx, s.db, processID, true)
}

// GetArc fetches a single arc of a process.
func (s *PGStore) GetArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	a, err := scanArc(s.db.QueryRow(ctx,
		`SELECT `+arcColumns+` FROM bpm_arcs WHERE id = $1 AND process_id = $2`,
		id, processID))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrArcNotFound
		}
		return nil, fmt.Errorf("bpm: get arc: %w", err)
	}
	return &a, nil
}

// CreateArc inserts a as a new active arc after checking both endpoints.
func (s *PGStore) CreateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	var out bpm.Arc
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := processExists(ctx, tx, processID); err != nil {
			return err
		}
		if err := checkArc(ctx, tx, processID, *a); err != nil {
			return err
		}
		var err error
		out, err = scanArc(tx.QueryRow(ctx,
			`INSERT INTO bpm_arcs (process_id, source_kind, source_id, target_kind, target_id, condition, active)
			 VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING `+arcColumns,
			processID, string(a.SourceKind), a.SourceID, string(a.TargetKind), a.TargetID, a.Condition))
		if err != nil {
			return fmt.Errorf("bpm: insert arc: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateArc replaces endpoints and condition of an existing arc.
func (s *PGStore) UpdateArc(ctx context.Context, processID int64, a *bpm.Arc) (*bpm.Arc, error) {
	var out bpm.Arc
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM bpm_arcs WHERE id = $1 AND process_id = $2 FOR UPDATE`,
			a.ID, processID,
		).Scan(&id)
		if err != nil {
			if isNoRows(err) {
				return bpm.ErrArcNotFound
			}
			return fmt.Errorf("bpm: lock arc: %w", err)
		}
		if err := checkArc(ctx, tx, processID, *a); err != nil {
			return err
		}
		out, err = scanArc(tx.QueryRow(ctx,
			`UPDATE bpm_arcs
			    SET source_kind = $2, source_id = $3, target_kind = $4, target_id = $5,
			        condition = $6, updated_at = NOW()
			  WHERE id = $1 RETURNING `+arcColumns,
			a.ID, string(a.SourceKind), a.SourceID, string(a.TargetKind), a.TargetID, a.Condition))
		if err != nil {
			return fmt.Errorf("bpm: update arc: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteArc marks an arc inactive. Deleting an inactive arc is a no-op.
func (s *PGStore) DeleteArc(ctx context.Context, processID, id int64) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE bpm_arcs SET active = FALSE, updated_at = NOW() WHERE id = $1 AND process_id = $2`,
		id, processID)
	if err != nil {
		return fmt.Errorf("bpm: deactivate arc: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return bpm.ErrArcNotFound
	}
	return nil
}

// ReactivateArc marks an arc active again. Both endpoints must still be
// active nodes.
func (s *PGStore) ReactivateArc(ctx context.Context, processID, id int64) (*bpm.Arc, error) {
	var out bpm.Arc
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanArc(tx.QueryRow(ctx,
			`SELECT `+arcColumns+` FROM bpm_arcs WHERE id = $1 AND process_id = $2 FOR UPDATE`,
			id, processID))
		if err != nil {
			if isNoRows(err) {
				return bpm.ErrArcNotFound
			}
			return fmt.Errorf("bpm: lock arc: %w", err)
		}
		if err := checkArc(ctx, tx, processID, cur); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE bpm_arcs SET active = TRUE, updated_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("bpm: reactivate arc: %w", err)
		}
		cur.Active = true
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PurgeArc removes an arc for good. No error if it doesn't exist.
func (s *PGStore) PurgeArc(ctx context.Context, processID, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM bpm_arcs WHERE id = $1 AND process_id = $2`, id, processID)
	if err != nil {
		return fmt.Errorf("bpm: delete arc: %w", err)
	}
	return nil
}
