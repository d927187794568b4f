package engine

import (
	"time"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// Aggregate projects a learner's exercise states onto the certification catalogue.
// states is keyed by exercise kind; kinds outside the catalogue are ignored.
func Aggregate(catalogue []domain.CertificationEntry, learnerID string, states map[string]domain.ExerciseScoreState, now time.Time) domain.CertificationRollup {
	r := domain.CertificationRollup{
		LearnerID:     learnerID,
		Status:        domain.StatusNotStarted,
		Contributions: make([]domain.Contribution, 0, len(catalogue)),
		ComputedAt:    now.UTC(),
	}
	var (
		onlineCounted int
		anyCounted    bool
		finalPositive bool
	)
	for _, e := range catalogue {
		c := domain.Contribution{
			Kind:      e.Kind,
			Status:    domain.StatusNotStarted,
			MaxPoints: e.MaxPoints,
			FinalExam: e.FinalExam,
		}
		r.MaxTotal += e.MaxPoints
		st, ok := states[e.Kind]
		if ok {
			c.Status = st.Status
			c.Counted = counts(e, st)
		}
		if c.Counted {
			anyCounted = true
			c.Score = clamp(st.FinalScore, 0, e.MaxPoints)
			if e.FinalExam {
				r.FinalExamScore += c.Score
				finalPositive = c.Score > 0
			} else {
				r.OnlineExercisesScore += c.Score
				onlineCounted++
			}
		}
		r.Contributions = append(r.Contributions, c)
	}
	r.OnlineExercisesScore = roundHalfUp(r.OnlineExercisesScore, 2)
	r.FinalExamScore = roundHalfUp(r.FinalExamScore, 2)
	r.TotalScore = roundHalfUp(r.OnlineExercisesScore+r.FinalExamScore, 2)

	switch {
	case finalPositive && onlineCounted > 0:
		r.Status = domain.StatusCompleted
	case anyCounted:
		r.Status = domain.StatusInProgress
	}
	return r
}

func counts(e domain.CertificationEntry, st domain.ExerciseScoreState) bool {
	switch st.Status {
	case domain.StatusPublished, domain.StatusEvaluated, domain.StatusCompleted:
		return true
	case domain.StatusInProgress:
		return e.FinalExam && st.FinalScore > 0
	}
	return false
}
