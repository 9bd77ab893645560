package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bpm_processes (
    id          BIGSERIAL PRIMARY KEY,
    tenant_id   BIGINT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT 'DRAFT',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bpm_roles (
    id          BIGSERIAL PRIMARY KEY,
    tenant_id   BIGINT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bpm_activities (
    id          BIGSERIAL PRIMARY KEY,
    process_id  BIGINT NOT NULL REFERENCES bpm_processes(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL,
    role_id     BIGINT REFERENCES bpm_roles(id) ON DELETE SET NULL,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    x           DOUBLE PRECISION,
    y           DOUBLE PRECISION,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bpm_gateways (
    id          BIGSERIAL PRIMARY KEY,
    process_id  BIGINT NOT NULL REFERENCES bpm_processes(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    x           DOUBLE PRECISION,
    y           DOUBLE PRECISION,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Arc endpoints are polymorphic (kind, id) pairs, so referential rules are
-- enforced by the store rather than by foreign keys.
CREATE TABLE IF NOT EXISTS bpm_arcs (
    id          BIGSERIAL PRIMARY KEY,
    process_id  BIGINT NOT NULL REFERENCES bpm_processes(id) ON DELETE CASCADE,
    source_kind TEXT NOT NULL,
    source_id   BIGINT NOT NULL,
    target_kind TEXT NOT NULL,
    target_id   BIGINT NOT NULL,
    condition   TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bpm_processes_tenant ON bpm_processes(tenant_id);
CREATE INDEX IF NOT EXISTS idx_bpm_roles_tenant     ON bpm_roles(tenant_id);
CREATE INDEX IF NOT EXISTS idx_bpm_activities_proc  ON bpm_activities(process_id);
CREATE INDEX IF NOT EXISTS idx_bpm_gateways_proc    ON bpm_gateways(process_id);
CREATE INDEX IF NOT EXISTS idx_bpm_arcs_proc        ON bpm_arcs(process_id);
CREATE INDEX IF NOT EXISTS idx_bpm_arcs_source      ON bpm_arcs(source_kind, source_id);
CREATE INDEX IF NOT EXISTS idx_bpm_arcs_target      ON bpm_arcs(target_kind, target_id);
`

// CreateSchema creates the bpm tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops all bpm tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS bpm_arcs, bpm_gateways, bpm_activities, bpm_roles, bpm_processes CASCADE;`)
	return err
}
