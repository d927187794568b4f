package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exercise_states (
	exercise_id TEXT PRIMARY KEY,
	learner_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	document    JSONB NOT NULL,
	version     BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS exercise_states_learner_idx ON exercise_states (learner_id);

CREATE TABLE IF NOT EXISTS certification_rollups (
	learner_id  TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	document    JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables used by the repositories when missing.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=postgres.ensure_schema: %w", err)
	}
	return nil
}
