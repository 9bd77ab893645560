package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/bpm"
)

const gatewayColumns = `id, process_id, name, description, kind, active, x, y`

func scanGateway(row pgx.Row) (bpm.Gateway, error) {
	var (
		g    bpm.Gateway
		kind string
	)
	err := row.Scan(&g.ID, &g.ProcessID, &g.Name, &g.Description, &kind, &g.Active, &g.X, &g.Y)
	g.Kind = bpm.GatewayKind(kind)
	return g, err
}

func listGateways(ctx context.Context, q querier, processID int64, activeOnly bool) ([]bpm.Gateway, error) {
	rows, err := q.Query(ctx,
		`SELECT `+gatewayColumns+` FROM bpm_gateways
		  WHERE process_id = $1 AND (active OR NOT $2) ORDER BY id`,
		processID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("bpm: list gateways: %w", err)
	}
	defer rows.Close()

	out := []bpm.Gateway{}
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("bpm: scan gateway: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGateways returns all gateways of a process ordered by id.
func (s *PGStore) ListGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	return listGateways(ctx, s.db, processID, false)
}

// ListActiveGateways returns the active gateways of a process.
func (s *PGStore) ListActiveGateways(ctx context.Context, processID int64) ([]bpm.Gateway, error) {
	return listGateways(ctx, s.db, processID, true)
}

// GetGateway fetches a single gateway of a process.
func (s *PGStore) GetGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	g, err := scanGateway(s.db.QueryRow(ctx,
		`SELECT `+gatewayColumns+` FROM bpm_gateways WHERE id = $1 AND process_id = $2`,
		id, processID))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrGatewayNotFound
		}
		return nil, fmt.Errorf("bpm: get gateway: %w", err)
	}
	return &g, nil
}

// CreateGateway inserts g as a new active gateway.
func (s *PGStore) CreateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var out bpm.Gateway
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := processExists(ctx, tx, processID); err != nil {
			return err
		}
		var err error
		out, err = scanGateway(tx.QueryRow(ctx,
			`INSERT INTO bpm_gateways (process_id, name, description, kind, active, x, y)
			 VALUES ($1, $2, $3, $4, TRUE, $5, $6) RETURNING `+gatewayColumns,
			processID, g.Name, g.Description, string(g.Kind), g.X, g.Y))
		if err != nil {
			return fmt.Errorf("bpm: insert gateway: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGateway replaces the editable fields of an existing gateway.
func (s *PGStore) UpdateGateway(ctx context.Context, processID int64, g *bpm.Gateway) (*bpm.Gateway, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	out, err := scanGateway(s.db.QueryRow(ctx,
		`UPDATE bpm_gateways
		    SET name = $3, description = $4, kind = $5, x = $6, y = $7, updated_at = NOW()
		  WHERE id = $1 AND process_id = $2
		  RETURNING `+gatewayColumns,
		g.ID, processID, g.Name, g.Description, string(g.Kind), g.X, g.Y))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrGatewayNotFound
		}
		return nil, fmt.Errorf("bpm: update gateway: %w", err)
	}
	return &out, nil
}

// DeleteGateway marks a gateway inactive. Rejected while active arcs still
// connect it.
func (s *PGStore) DeleteGateway(ctx context.Context, processID, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return deactivate(ctx, tx, "bpm_gateways", bpm.Endpoint{Kind: bpm.KindGateway, ID: id}, processID, bpm.ErrGatewayNotFound)
	})
}

// ReactivateGateway marks a gateway active again.
func (s *PGStore) ReactivateGateway(ctx context.Context, processID, id int64) (*bpm.Gateway, error) {
	out, err := scanGateway(s.db.QueryRow(ctx,
		`UPDATE bpm_gateways SET active = TRUE, updated_at = NOW()
		  WHERE id = $1 AND process_id = $2 RETURNING `+gatewayColumns,
		id, processID))
	if err != nil {
		if isNoRows(err) {
			return nil, bpm.ErrGatewayNotFound
		}
		return nil, fmt.Errorf("bpm: reactivate gateway: %w", err)
	}
	return &out, nil
}

// PurgeGateway removes a gateway for good.
func (s *PGStore) PurgeGateway(ctx context.Context, processID, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return purge(ctx, tx, "bpm_gateways", bpm.Endpoint{Kind: bpm.KindGateway, ID: id}, processID, bpm.ErrGatewayNotFound)
	})
}
