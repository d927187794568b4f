// Package usecase contains application business logic services.
//
// Every state change follows the same shape: read the stored document, apply
// a pure engine step, then compare-and-swap the whole document. A stale write
// is retried from a fresh read.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// mutation computes the next state from the stored one.
type mutation func(st domain.ExerciseScoreState, now time.Time) (domain.ExerciseScoreState, error)

// StateWriter applies mutations to exercise states with optimistic concurrency
// and announces committed changes.
type StateWriter struct {
	States domain.ExerciseStateRepository
	Events domain.EventPublisher
	Retry  config.RetryConfig
	Now    func() time.Time
}

// NewStateWriter constructs a StateWriter. events may be nil.
func NewStateWriter(states domain.ExerciseStateRepository, events domain.EventPublisher, retry config.RetryConfig) StateWriter {
	return StateWriter{States: states, Events: events, Retry: retry, Now: time.Now}
}

func (w StateWriter) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

func (w StateWriter) backoff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = w.Retry.InitialDelay
	expo.MaxInterval = w.Retry.MaxDelay
	expo.Multiplier = w.Retry.Multiplier
	expo.MaxElapsedTime = 0
	if !w.Retry.Jitter {
		expo.RandomizationFactor = 0
	}
	if expo.Multiplier < 1 {
		expo.Multiplier = 1
	}
	expo.Reset()
	return backoff.WithMaxRetries(expo, uint64(max(w.Retry.MaxRetries, 0)))
}

// apply runs fn against the current state of exerciseID and stores the result.
// When the exercise does not exist, initial is used if non-nil.
func (w StateWriter) apply(ctx domain.Context, op, exerciseID string, initial *domain.ExerciseScoreState, fn mutation) (domain.ExerciseScoreState, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	var saved domain.ExerciseScoreState
	attempt := 0
	do := func() error {
		attempt++
		cur, err := w.States.Get(ctx, exerciseID)
		switch {
		case errors.Is(err, domain.ErrNotFound) && initial != nil:
			cur = *initial
			cur.Version = 0
		case err != nil:
			return backoff.Permanent(err)
		}
		next, err := fn(cur, w.now())
		if err != nil {
			return backoff.Permanent(err)
		}
		saved, err = w.States.Replace(ctx, next, cur.Version)
		if errors.Is(err, domain.ErrStaleWrite) {
			observability.ObserveStateConflict(op)
			obsctx.LoggerFromContext(ctx).Debug("stale exercise write, retrying",
				slog.String("op", op), slog.String("exercise_id", exerciseID), slog.Int("attempt", attempt))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(do, backoff.WithContext(w.backoff(), ctx)); err != nil {
		span.RecordError(err)
		return domain.ExerciseScoreState{}, fmt.Errorf("op=%s: %w", op, err)
	}
	span.SetAttributes(attribute.Int64("exercise.version", saved.Version), attribute.Int("write.attempts", attempt))
	return saved, nil
}

// announce publishes a score change. Failures are logged only: the projector
// recomputes from stored states, so a lost event is repaired by the next read.
func (w StateWriter) announce(ctx domain.Context, st domain.ExerciseScoreState) {
	if w.Events == nil {
		return
	}
	ev := domain.ScoreChangedEvent{
		EventID:    uuid.NewString(),
		ExerciseID: st.ExerciseID,
		LearnerID:  st.LearnerID,
		Kind:       st.Kind,
		Status:     st.Status,
		FinalScore: st.FinalScore,
		Version:    st.Version,
		OccurredAt: st.UpdatedAt,
	}
	if err := w.Events.PublishScoreChanged(ctx, ev); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("failed to publish score change",
			slog.String("exercise_id", st.ExerciseID), slog.Any("error", err))
	}
}
