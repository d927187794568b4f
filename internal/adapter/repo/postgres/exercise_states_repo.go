// Package postgres provides PostgreSQL database adapters.
//
// Exercise score states are stored as whole JSONB documents guarded by a
// version column, so every write is a compare-and-swap on that version.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ExerciseStateRepo persists exercise score states.
type ExerciseStateRepo struct{ Pool PgxPool }

// NewExerciseStateRepo constructs an ExerciseStateRepo with the given pool.
func NewExerciseStateRepo(p PgxPool) *ExerciseStateRepo { return &ExerciseStateRepo{Pool: p} }

var _ domain.ExerciseStateRepository = (*ExerciseStateRepo)(nil)

func startSpan(ctx context.Context, tracerName, name, op, table string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
	)
	return ctx, span
}

// Get loads the state of one exercise. Unknown ids return domain.ErrNotFound.
func (r *ExerciseStateRepo) Get(ctx domain.Context, exerciseID string) (domain.ExerciseScoreState, error) {
	ctx, span := startSpan(ctx, "repo.exercise_states", "exercise_states.Get", "SELECT", "exercise_states")
	defer span.End()

	q := `SELECT document, version FROM exercise_states WHERE exercise_id=$1`
	var (
		doc     []byte
		version int64
	)
	if err := r.Pool.QueryRow(ctx, q, exerciseID).Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExerciseScoreState{}, fmt.Errorf("op=exercise_state.get: %w", domain.ErrNotFound)
		}
		return domain.ExerciseScoreState{}, fmt.Errorf("op=exercise_state.get: %w", err)
	}
	st, err := decodeState(doc, version)
	if err != nil {
		return domain.ExerciseScoreState{}, fmt.Errorf("op=exercise_state.get: %w", err)
	}
	return st, nil
}

// Replace writes state when the stored version equals expectedVersion.
// expectedVersion 0 means the exercise must not exist yet. The returned state
// carries the new version.
func (r *ExerciseStateRepo) Replace(ctx domain.Context, state domain.ExerciseScoreState, expectedVersion int64) (domain.ExerciseScoreState, error) {
	op := "UPDATE"
	if expectedVersion == 0 {
		op = "INSERT"
	}
	ctx, span := startSpan(ctx, "repo.exercise_states", "exercise_states.Replace", op, "exercise_states")
	defer span.End()
	span.SetAttributes(attribute.Int64("exercise.expected_version", expectedVersion))

	if state.ExerciseID == "" {
		return state, fmt.Errorf("op=exercise_state.replace: %w: empty exercise id", domain.ErrInvalidArgument)
	}
	next := state
	next.Version = expectedVersion + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return state, fmt.Errorf("op=exercise_state.replace: %w", err)
	}

	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		q := `INSERT INTO exercise_states (exercise_id, learner_id, kind, status, document, version, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (exercise_id) DO NOTHING`
		tag, err = r.Pool.Exec(ctx, q, next.ExerciseID, next.LearnerID, next.Kind, string(next.Status), doc, next.Version, next.UpdatedAt)
	} else {
		q := `UPDATE exercise_states SET status=$2, document=$3, version=$4, updated_at=$5
WHERE exercise_id=$1 AND version=$6`
		tag, err = r.Pool.Exec(ctx, q, next.ExerciseID, string(next.Status), doc, next.Version, next.UpdatedAt, expectedVersion)
	}
	if err != nil {
		return state, fmt.Errorf("op=exercise_state.replace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return state, fmt.Errorf("op=exercise_state.replace: %w: exercise %s at version %d", domain.ErrStaleWrite, next.ExerciseID, expectedVersion)
	}
	return next, nil
}

// ListByLearner returns every stored state of a learner ordered by kind.
func (r *ExerciseStateRepo) ListByLearner(ctx domain.Context, learnerID string) ([]domain.ExerciseScoreState, error) {
	ctx, span := startSpan(ctx, "repo.exercise_states", "exercise_states.ListByLearner", "SELECT", "exercise_states")
	defer span.End()

	q := `SELECT document, version FROM exercise_states WHERE learner_id=$1 ORDER BY kind, exercise_id`
	rows, err := r.Pool.Query(ctx, q, learnerID)
	if err != nil {
		return nil, fmt.Errorf("op=exercise_state.list: %w", err)
	}
	defer rows.Close()

	var out []domain.ExerciseScoreState
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("op=exercise_state.list: %w", err)
		}
		st, err := decodeState(doc, version)
		if err != nil {
			return nil, fmt.Errorf("op=exercise_state.list: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=exercise_state.list: %w", err)
	}
	return out, nil
}

func decodeState(doc []byte, version int64) (domain.ExerciseScoreState, error) {
	var st domain.ExerciseScoreState
	if err := json.Unmarshal(doc, &st); err != nil {
		return domain.ExerciseScoreState{}, fmt.Errorf("decode document: %w", err)
	}
	// the column is authoritative
	st.Version = version
	if st.Entries == nil {
		st.Entries = map[domain.ItemKey]domain.ScoreEntry{}
	}
	if st.Shadow == nil {
		st.Shadow = map[domain.ItemKey]domain.ScoreEntry{}
	}
	return st, nil
}
