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

// EvaluationOutcome is the result of one automatic evaluation attempt.
// Placeholder is set when the grader output could not be used.
type EvaluationOutcome struct {
	State       domain.ExerciseScoreState
	Report      engine.MergeReport
	Placeholder *domain.RubricResult
}

// EvaluationService grades submitted exercises and merges the result as the AI source.
type EvaluationService struct {
	Engine  *engine.Engine
	Grader  domain.AIGrader
	Writer  StateWriter
	Monitor *observability.DisagreementMonitor
}

// NewEvaluationService constructs an EvaluationService. monitor may be nil.
func NewEvaluationService(e *engine.Engine, g domain.AIGrader, w StateWriter, monitor *observability.DisagreementMonitor) EvaluationService {
	return EvaluationService{Engine: e, Grader: g, Writer: w, Monitor: monitor}
}

// Evaluate grades content for an exercise. A grader timeout, malformed output or
// schema violation does not fail the call: the previous scores are kept and the
// failure is recorded on the state. Rate limiting and invalid input are returned.
func (s EvaluationService) Evaluate(ctx domain.Context, exerciseID, orgID, content string) (EvaluationOutcome, error) {
	cur, err := s.Writer.States.Get(ctx, exerciseID)
	if err != nil {
		return EvaluationOutcome{}, fmt.Errorf("op=evaluation.evaluate: %w", err)
	}
	if err := engine.Evaluable(cur.Status); err != nil {
		return EvaluationOutcome{}, fmt.Errorf("op=evaluation.evaluate: %w", err)
	}
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("exercise_id", exerciseID), slog.String("kind", cur.Kind))
	typ := string(cur.Type)

	raw, err := s.Grader.Grade(ctx, orgID, cur.Type, content)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrInvalidArgument) {
			observability.ObserveEvaluation(typ, string(domain.SourceAI), "rejected")
			return EvaluationOutcome{}, fmt.Errorf("op=evaluation.evaluate: %w", err)
		}
		return s.fallback(ctx, lg, cur, err)
	}
	res, err := s.Engine.ExtractAndNormalize(raw, cur.Kind)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedResponse) || errors.Is(err, domain.ErrSchemaViolation) {
			return s.fallback(ctx, lg, cur, err)
		}
		return EvaluationOutcome{}, fmt.Errorf("op=evaluation.evaluate: %w", err)
	}

	var rep engine.MergeReport
	st, err := s.Writer.apply(ctx, "evaluation.merge", exerciseID, nil, func(st domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		next, r, err := s.Engine.MergeWithReport(st, res, domain.SourceAI, now)
		if err != nil {
			return st, err
		}
		next.LastFailure = nil
		rep = r
		return next, nil
	})
	if err != nil {
		observability.ObserveEvaluation(typ, string(domain.SourceAI), "error")
		return EvaluationOutcome{}, err
	}
	observability.ObserveEvaluation(typ, string(domain.SourceAI), "merged")
	observability.ObserveShadowed(typ, rep.Shadowed)
	s.observeScore(st)
	recordDisagreements(s.Engine, s.Monitor, st, rep)
	lg.Info("exercise evaluated",
		slog.Int("stored", rep.Stored), slog.Int("shadowed", rep.Shadowed),
		slog.Float64("final_score", st.FinalScore))
	s.Writer.announce(ctx, st)
	return EvaluationOutcome{State: st, Report: rep}, nil
}

func (s EvaluationService) fallback(ctx domain.Context, lg *slog.Logger, cur domain.ExerciseScoreState, cause error) (EvaluationOutcome, error) {
	ph := s.Engine.Placeholder(cur.Kind, cause)
	reason := domain.FailureCode(cause)
	observability.ObservePlaceholder(string(cur.Type), reason)
	lg.Warn("grader output unusable, keeping previous scores",
		slog.String("reason", reason), slog.Any("error", cause))

	st, err := s.Writer.apply(ctx, "evaluation.placeholder", cur.ExerciseID, nil, func(st domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		return engine.RecordFailure(st, ph, cause, now)
	})
	if err != nil {
		return EvaluationOutcome{}, err
	}
	return EvaluationOutcome{State: st, Placeholder: &ph}, nil
}

func (s EvaluationService) observeScore(st domain.ExerciseScoreState) {
	rubric, err := s.Engine.Rubric(st.Kind)
	if err != nil {
		return
	}
	observability.ObserveFinalScore(st.Kind, st.FinalScore, rubric.RescaleTarget)
}

func recordDisagreements(e *engine.Engine, m *observability.DisagreementMonitor, st domain.ExerciseScoreState, rep engine.MergeReport) {
	if m == nil || len(rep.Disagreements) == 0 {
		return
	}
	rubric, err := e.Rubric(st.Kind)
	if err != nil {
		return
	}
	for _, d := range rep.Disagreements {
		rule, ok := rubric.Rule(d.Key)
		if !ok {
			continue
		}
		m.Record(string(st.Type), d.AI, d.Manual, rule.MaxPoints)
	}
}
