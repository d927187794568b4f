package engine

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// Engine binds the pure pipeline to a validated rubric catalogue.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	catalogue domain.Catalogue
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to stamp rollups.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates the catalogue and returns an Engine.
func New(cat domain.Catalogue, opts ...Option) (*Engine, error) {
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("op=engine.new: %w", err)
	}
	e := &Engine{catalogue: cat, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Catalogue() domain.Catalogue { return e.catalogue }

// Rubric returns the rubric of an exercise kind.
func (e *Engine) Rubric(kind string) (domain.Rubric, error) {
	r, ok := e.catalogue.Rubric(kind)
	if !ok {
		return domain.Rubric{}, fmt.Errorf("%w: unknown exercise kind %q", domain.ErrInvalidArgument, kind)
	}
	return r, nil
}

// ExtractAndNormalize turns a raw grader response into a validated RubricResult.
// Failures are *domain.MalformedResponseError or *domain.SchemaViolationError.
func (e *Engine) ExtractAndNormalize(raw, kind string) (domain.RubricResult, error) {
	rubric, err := e.Rubric(kind)
	if err != nil {
		return domain.RubricResult{}, err
	}
	v, err := Extract(raw)
	if err != nil {
		return domain.RubricResult{}, err
	}
	return Normalize(v, rubric)
}

// ScoreAndMerge folds a pass into the state and recomputes totals.
func (e *Engine) ScoreAndMerge(existing domain.ExerciseScoreState, result domain.RubricResult, source domain.Source, ts time.Time) (domain.ExerciseScoreState, error) {
	st, _, err := e.MergeWithReport(existing, result, source, ts)
	return st, err
}

// MergeWithReport is ScoreAndMerge plus the per-key outcome of the merge.
func (e *Engine) MergeWithReport(existing domain.ExerciseScoreState, result domain.RubricResult, source domain.Source, ts time.Time) (domain.ExerciseScoreState, MergeReport, error) {
	kind := existing.Kind
	if kind == "" {
		kind = result.Kind
	}
	rubric, err := e.Rubric(kind)
	if err != nil {
		return existing, MergeReport{}, err
	}
	return Merge(existing, result, source, ts, rubric)
}

// Publish folds the staged trainer draft, if any, as a manual pass and freezes the state.
func (e *Engine) Publish(existing domain.ExerciseScoreState, staged *domain.RubricResult, ts time.Time) (domain.ExerciseScoreState, error) {
	if existing.Status == domain.StatusPublished {
		return existing, domain.ErrPublished
	}
	st := existing
	if staged != nil {
		merged, err := e.ScoreAndMerge(existing, *staged, domain.SourceManual, ts)
		if err != nil {
			return existing, err
		}
		st = merged
	}
	return Freeze(st, ts)
}

// AggregateCertification projects a learner's states, keyed by exercise kind, onto the
// certification catalogue.
func (e *Engine) AggregateCertification(learnerID string, states map[string]domain.ExerciseScoreState) domain.CertificationRollup {
	return Aggregate(e.catalogue.Certification, learnerID, states, e.now())
}

// Placeholder is the canonical zero-score result callers record when a grader
// response cannot be used.
func (e *Engine) Placeholder(kind string, cause error) domain.RubricResult {
	r, _ := e.catalogue.Rubric(kind)
	msg := "Automatic evaluation is unavailable for this exercise; a trainer will review it."
	if code := domain.FailureCode(cause); code != "" {
		msg = fmt.Sprintf("Automatic evaluation failed (%s); a trainer will review this exercise.", code)
	}
	return domain.RubricResult{Kind: kind, Type: r.Type, Items: []domain.ScoredItem{}, Feedback: msg}
}
