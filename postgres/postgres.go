package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/bpm"
)

// PGStore implements bpm.Store using PostgreSQL via pgx.
type PGStore struct {
	db *pgxpool.Pool
}

// New creates a new PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

var _ bpm.Store = (*PGStore)(nil)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isNoRows checks if the error is a "no rows" error from pgx.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// activeEndpoints reports, for each persisted endpoint, whether it is an
// active node of processID. Rows are share-locked until the transaction ends
// so a concurrent delete cannot orphan the arc being written.
func activeEndpoints(ctx context.Context, q querier, processID int64, eps ...bpm.Endpoint) (map[bpm.Endpoint]bool, error) {
	out := make(map[bpm.Endpoint]bool, len(eps))
	for _, ep := range eps {
		var table string
		switch ep.Kind {
		case bpm.KindActivity:
			table = "bpm_activities"
		case bpm.KindGateway:
			table = "bpm_gateways"
		case bpm.KindStartEvent, bpm.KindEndEvent:
			out[ep] = true
			continue
		default:
			continue
		}
		var active bool
		err := q.QueryRow(ctx,
			`SELECT active FROM `+table+` WHERE id = $1 AND process_id = $2 FOR SHARE`,
			ep.ID, processID,
		).Scan(&active)
		if err != nil && !isNoRows(err) {
			return nil, err
		}
		out[ep] = active
	}
	return out, nil
}

// incidentArcs counts arcs touching ep, optionally only the active ones.
func incidentArcs(ctx context.Context, q querier, processID int64, ep bpm.Endpoint, activeOnly bool) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
SELECT COUNT(*) FROM bpm_arcs
 WHERE process_id = $1
   AND ((source_kind = $2 AND source_id = $3) OR (target_kind = $2 AND target_id = $3))
   AND (active OR NOT $4)`,
		processID, string(ep.Kind), ep.ID, activeOnly,
	).Scan(&n)
	return n, err
}
