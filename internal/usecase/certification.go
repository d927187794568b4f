package usecase

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// CertificationService maintains the per-learner certification rollup. The
// rollup is always recomputed from stored exercise states, never patched.
type CertificationService struct {
	Engine  *engine.Engine
	States  domain.ExerciseStateRepository
	Rollups domain.RollupRepository
}

// NewCertificationService constructs a CertificationService.
func NewCertificationService(e *engine.Engine, states domain.ExerciseStateRepository, rollups domain.RollupRepository) CertificationService {
	return CertificationService{Engine: e, States: states, Rollups: rollups}
}

// Recompute aggregates the learner's current states and stores the rollup.
func (s CertificationService) Recompute(ctx domain.Context, learnerID, trigger string) (domain.CertificationRollup, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "certification.recompute")
	defer span.End()
	span.SetAttributes(attribute.String("learner.id", learnerID), attribute.String("trigger", trigger))

	if learnerID == "" {
		return domain.CertificationRollup{}, fmt.Errorf("op=certification.recompute: %w: learner id required", domain.ErrInvalidArgument)
	}
	states, err := s.States.ListByLearner(ctx, learnerID)
	if err != nil {
		span.RecordError(err)
		return domain.CertificationRollup{}, fmt.Errorf("op=certification.recompute: %w", err)
	}
	r := s.Engine.AggregateCertification(learnerID, latestByKind(states))
	if err := s.Rollups.Upsert(ctx, r); err != nil {
		span.RecordError(err)
		return domain.CertificationRollup{}, fmt.Errorf("op=certification.recompute: %w", err)
	}
	observability.ObserveRecompute(trigger)
	obsctx.LoggerFromContext(ctx).Debug("certification recomputed",
		slog.String("learner_id", learnerID),
		slog.String("status", string(r.Status)),
		slog.Float64("total_score", r.TotalScore))
	return r, nil
}

// Get returns a freshly computed rollup. When the states cannot be read the
// last stored rollup is served instead.
func (s CertificationService) Get(ctx domain.Context, learnerID string) (domain.CertificationRollup, error) {
	r, err := s.Recompute(ctx, learnerID, "read")
	if err == nil {
		return r, nil
	}
	stored, gerr := s.Rollups.Get(ctx, learnerID)
	if gerr != nil {
		return domain.CertificationRollup{}, err
	}
	obsctx.LoggerFromContext(ctx).Warn("serving stored certification rollup",
		slog.String("learner_id", learnerID), slog.Any("error", err))
	return stored, nil
}

// HandleEvent is the score-changed event handler of the projector.
func (s CertificationService) HandleEvent(ctx domain.Context, ev domain.ScoreChangedEvent) error {
	_, err := s.Recompute(ctx, ev.LearnerID, "event")
	return err
}

// latestByKind keeps, per exercise kind, the most recently updated state.
func latestByKind(states []domain.ExerciseScoreState) map[string]domain.ExerciseScoreState {
	out := make(map[string]domain.ExerciseScoreState, len(states))
	for _, st := range states {
		cur, ok := out[st.Kind]
		if !ok || st.UpdatedAt.After(cur.UpdatedAt) ||
			(st.UpdatedAt.Equal(cur.UpdatedAt) && st.ExerciseID > cur.ExerciseID) {
			out[st.Kind] = st
		}
	}
	return out
}
