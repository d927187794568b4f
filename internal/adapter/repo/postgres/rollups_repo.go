package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// RollupRepo stores the certification projection of each learner.
type RollupRepo struct{ Pool PgxPool }

// NewRollupRepo constructs a RollupRepo with the given pool.
func NewRollupRepo(p PgxPool) *RollupRepo { return &RollupRepo{Pool: p} }

var _ domain.RollupRepository = (*RollupRepo)(nil)

// Upsert stores r unless a rollup computed later is already present.
func (r *RollupRepo) Upsert(ctx domain.Context, rollup domain.CertificationRollup) error {
	ctx, span := startSpan(ctx, "repo.rollups", "rollups.Upsert", "UPSERT", "certification_rollups")
	defer span.End()

	doc, err := json.Marshal(rollup)
	if err != nil {
		return fmt.Errorf("op=rollup.upsert: %w", err)
	}
	q := `INSERT INTO certification_rollups (learner_id, status, document, computed_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (learner_id) DO UPDATE SET status=EXCLUDED.status, document=EXCLUDED.document, computed_at=EXCLUDED.computed_at
WHERE certification_rollups.computed_at <= EXCLUDED.computed_at`
	if _, err := r.Pool.Exec(ctx, q, rollup.LearnerID, string(rollup.Status), doc, rollup.ComputedAt); err != nil {
		return fmt.Errorf("op=rollup.upsert: %w", err)
	}
	return nil
}

// Get loads the rollup of a learner or returns domain.ErrNotFound.
func (r *RollupRepo) Get(ctx domain.Context, learnerID string) (domain.CertificationRollup, error) {
	ctx, span := startSpan(ctx, "repo.rollups", "rollups.Get", "SELECT", "certification_rollups")
	defer span.End()

	var doc []byte
	q := `SELECT document FROM certification_rollups WHERE learner_id=$1`
	if err := r.Pool.QueryRow(ctx, q, learnerID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CertificationRollup{}, fmt.Errorf("op=rollup.get: %w", domain.ErrNotFound)
		}
		return domain.CertificationRollup{}, fmt.Errorf("op=rollup.get: %w", err)
	}
	var out domain.CertificationRollup
	if err := json.Unmarshal(doc, &out); err != nil {
		return domain.CertificationRollup{}, fmt.Errorf("op=rollup.get: %w", err)
	}
	return out, nil
}
