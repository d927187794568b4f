package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// TrainerService handles trainer scoring: direct manual scores, staged drafts
// and publication.
type TrainerService struct {
	Engine  *engine.Engine
	Drafts  domain.DraftStore
	Writer  StateWriter
	Monitor *observability.DisagreementMonitor
}

// NewTrainerService constructs a TrainerService. monitor may be nil.
func NewTrainerService(e *engine.Engine, drafts domain.DraftStore, w StateWriter, monitor *observability.DisagreementMonitor) TrainerService {
	return TrainerService{Engine: e, Drafts: drafts, Writer: w, Monitor: monitor}
}

// SubmitManualScores merges trainer scores into the exercise immediately.
func (s TrainerService) SubmitManualScores(ctx domain.Context, exerciseID string, items []domain.ScoredItem, feedback string) (domain.ExerciseScoreState, error) {
	cur, err := s.Writer.States.Get(ctx, exerciseID)
	if err != nil {
		return domain.ExerciseScoreState{}, fmt.Errorf("op=trainer.submit_manual: %w", err)
	}
	if err := engine.Evaluable(cur.Status); err != nil {
		return domain.ExerciseScoreState{}, fmt.Errorf("op=trainer.submit_manual: %w", err)
	}
	res, err := s.manualResult(cur.Kind, items, feedback)
	if err != nil {
		return domain.ExerciseScoreState{}, fmt.Errorf("op=trainer.submit_manual: %w", err)
	}
	var rep engine.MergeReport
	st, err := s.Writer.apply(ctx, "trainer.submit_manual", exerciseID, nil, func(st domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		next, r, err := s.Engine.MergeWithReport(st, res, domain.SourceManual, now)
		rep = r
		return next, err
	})
	if err != nil {
		observability.ObserveEvaluation(string(cur.Type), string(domain.SourceManual), "error")
		return domain.ExerciseScoreState{}, err
	}
	observability.ObserveEvaluation(string(st.Type), string(domain.SourceManual), "merged")
	recordDisagreements(s.Engine, s.Monitor, st, rep)
	obsctx.LoggerFromContext(ctx).Info("manual scores merged",
		slog.String("exercise_id", exerciseID),
		slog.Int("overwritten", rep.Overwritten),
		slog.Float64("final_score", st.FinalScore))
	s.Writer.announce(ctx, st)
	return st, nil
}

// StageDraft validates trainer scores and stages them until publication.
// Staged items replace earlier staged items with the same key.
func (s TrainerService) StageDraft(ctx domain.Context, exerciseID string, items []domain.ScoredItem, feedback string) (domain.RubricResult, error) {
	cur, err := s.Writer.States.Get(ctx, exerciseID)
	if err != nil {
		return domain.RubricResult{}, fmt.Errorf("op=trainer.stage_draft: %w", err)
	}
	if cur.Status == domain.StatusPublished {
		return domain.RubricResult{}, fmt.Errorf("op=trainer.stage_draft: %w", domain.ErrPublished)
	}
	res, err := s.manualResult(cur.Kind, items, feedback)
	if err != nil {
		return domain.RubricResult{}, fmt.Errorf("op=trainer.stage_draft: %w", err)
	}
	return s.Drafts.Stage(ctx, exerciseID, res)
}

// GetDraft returns the staged draft of an exercise.
func (s TrainerService) GetDraft(ctx domain.Context, exerciseID string) (domain.RubricResult, error) {
	return s.Drafts.Get(ctx, exerciseID)
}

// DiscardDraft drops the staged draft of an exercise.
func (s TrainerService) DiscardDraft(ctx domain.Context, exerciseID string) error {
	return s.Drafts.Discard(ctx, exerciseID)
}

// Publish folds the staged draft, if any, into the exercise and freezes it.
func (s TrainerService) Publish(ctx domain.Context, exerciseID string) (domain.ExerciseScoreState, error) {
	var staged *domain.RubricResult
	draft, err := s.Drafts.Get(ctx, exerciseID)
	switch {
	case err == nil:
		staged = &draft
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ExerciseScoreState{}, fmt.Errorf("op=trainer.publish: %w", err)
	}
	st, err := s.Writer.apply(ctx, "trainer.publish", exerciseID, nil, func(st domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		return s.Engine.Publish(st, staged, now)
	})
	if err != nil {
		return domain.ExerciseScoreState{}, err
	}
	lg := obsctx.LoggerFromContext(ctx)
	if staged != nil {
		if err := s.Drafts.Discard(ctx, exerciseID); err != nil {
			lg.Warn("failed to discard published draft", slog.String("exercise_id", exerciseID), slog.Any("error", err))
		}
	}
	observability.ObserveFinalScore(st.Kind, st.FinalScore, s.rescaleTarget(st.Kind))
	lg.Info("exercise published", slog.String("exercise_id", exerciseID), slog.Float64("final_score", st.FinalScore))
	s.Writer.announce(ctx, st)
	return st, nil
}

func (s TrainerService) manualResult(kind string, items []domain.ScoredItem, feedback string) (domain.RubricResult, error) {
	rubric, err := s.Engine.Rubric(kind)
	if err != nil {
		return domain.RubricResult{}, err
	}
	return engine.NormalizeManual(rubric, items, feedback)
}

func (s TrainerService) rescaleTarget(kind string) float64 {
	r, err := s.Engine.Rubric(kind)
	if err != nil {
		return 0
	}
	return r.RescaleTarget
}
