package engine

import (
	"fmt"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

var transitions = map[domain.ExerciseStatus][]domain.ExerciseStatus{
	domain.StatusNotStarted: {domain.StatusInProgress},
	domain.StatusInProgress: {domain.StatusSubmitted},
	domain.StatusSubmitted:  {domain.StatusEvaluated},
	domain.StatusEvaluated:  {domain.StatusEvaluated, domain.StatusPublished},
}

// Transition validates an exercise status change. Re-evaluation is allowed from
// submitted and evaluated; nothing leaves published.
func Transition(from, to domain.ExerciseStatus) error {
	if from == domain.StatusPublished || from == domain.StatusCompleted {
		return domain.ErrPublished
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move exercise from %s to %s", domain.ErrConflict, from, to)
}

// Evaluable reports whether a scoring pass may be merged into a state with this status.
func Evaluable(s domain.ExerciseStatus) error {
	return Transition(s, domain.StatusEvaluated)
}
