package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// ExerciseService drives the learner side of the exercise lifecycle and
// serves state reads.
type ExerciseService struct {
	Engine *engine.Engine
	Writer StateWriter
}

// NewExerciseService constructs an ExerciseService.
func NewExerciseService(e *engine.Engine, w StateWriter) ExerciseService {
	return ExerciseService{Engine: e, Writer: w}
}

// Start opens an exercise for a learner. Starting an exercise that is already
// in progress returns it unchanged.
func (s ExerciseService) Start(ctx domain.Context, exerciseID, learnerID, kind string) (domain.ExerciseScoreState, error) {
	if exerciseID == "" || learnerID == "" {
		return domain.ExerciseScoreState{}, fmt.Errorf("%w: exercise and learner ids required", domain.ErrInvalidArgument)
	}
	rubric, err := s.Engine.Rubric(kind)
	if err != nil {
		return domain.ExerciseScoreState{}, err
	}
	initial := domain.NewExerciseScoreState(exerciseID, learnerID, kind, rubric.Type)
	st, err := s.Writer.apply(ctx, "exercise.start", exerciseID, &initial, func(cur domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		if err := owns(cur, learnerID); err != nil {
			return cur, err
		}
		if cur.Kind != kind {
			return cur, fmt.Errorf("%w: exercise %s is of kind %q", domain.ErrConflict, exerciseID, cur.Kind)
		}
		if cur.Status == domain.StatusInProgress && cur.Version > 0 {
			return cur, errUnchanged
		}
		if err := engine.Transition(cur.Status, domain.StatusInProgress); err != nil {
			return cur, err
		}
		cur.Status = domain.StatusInProgress
		if cur.CreatedAt.IsZero() {
			cur.CreatedAt = now
		}
		cur.UpdatedAt = now
		return cur, nil
	})
	if errors.Is(err, errUnchanged) {
		return s.Writer.States.Get(ctx, exerciseID)
	}
	if err != nil {
		return domain.ExerciseScoreState{}, err
	}
	obsctx.LoggerFromContext(ctx).Info("exercise started", slog.String("exercise_id", exerciseID), slog.String("kind", kind))
	s.Writer.announce(ctx, st)
	return st, nil
}

// Submit closes the learner's work on an exercise.
func (s ExerciseService) Submit(ctx domain.Context, exerciseID, learnerID string) (domain.ExerciseScoreState, error) {
	st, err := s.Writer.apply(ctx, "exercise.submit", exerciseID, nil, func(cur domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error) {
		if err := owns(cur, learnerID); err != nil {
			return cur, err
		}
		if err := engine.Transition(cur.Status, domain.StatusSubmitted); err != nil {
			return cur, err
		}
		cur.Status = domain.StatusSubmitted
		cur.UpdatedAt = now
		return cur, nil
	})
	if err != nil {
		return domain.ExerciseScoreState{}, err
	}
	s.Writer.announce(ctx, st)
	return st, nil
}

// Fetch returns the state of an exercise with its ETag. notModified is true
// when ifNoneMatch already names the current representation.
func (s ExerciseService) Fetch(ctx domain.Context, exerciseID, ifNoneMatch string) (st domain.ExerciseScoreState, etag string, notModified bool, err error) {
	st, err = s.Writer.States.Get(ctx, exerciseID)
	if err != nil {
		return domain.ExerciseScoreState{}, "", false, fmt.Errorf("op=exercise.fetch: %w", err)
	}
	etag = makeETag(st)
	return st, etag, ifNoneMatch != "" && ifNoneMatch == etag, nil
}

var errUnchanged = errors.New("unchanged")

func owns(st domain.ExerciseScoreState, learnerID string) error {
	if learnerID != "" && st.LearnerID != learnerID {
		return fmt.Errorf("%w: exercise belongs to another learner", domain.ErrForbidden)
	}
	return nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
