package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// Disagreement is recorded whenever an AI score and a manual score meet on the same key.
type Disagreement struct {
	Key    domain.ItemKey
	AI     float64
	Manual float64
}

// MergeReport counts what a merge did to each key of the incoming pass.
type MergeReport struct {
	Stored        int
	Overwritten   int
	Shadowed      int
	Unchanged     int
	Disagreements []Disagreement
}

// Merge folds one pass into a copy of existing and recomputes the derived totals.
//
// Per key: an empty slot takes the new entry; an AI entry never displaces a
// manual one and lands in the shadow slot instead; a manual entry displaces an
// AI one, which moves to the shadow slot; between entries of the same source
// the later timestamp wins. Only submitted and evaluated states accept a pass:
// a published state is returned untouched with domain.ErrPublished, one that
// was never submitted with domain.ErrConflict.
func Merge(existing domain.ExerciseScoreState, result domain.RubricResult, source domain.Source, ts time.Time, rubric domain.Rubric) (domain.ExerciseScoreState, MergeReport, error) {
	var rep MergeReport
	if err := Evaluable(existing.Status); err != nil {
		return existing, rep, err
	}
	if !source.Valid() {
		return existing, rep, fmt.Errorf("%w: source %q", domain.ErrInvalidArgument, source)
	}
	if existing.Kind != "" && result.Kind != "" && existing.Kind != result.Kind {
		return existing, rep, fmt.Errorf("%w: result for %q merged into %q", domain.ErrInvalidArgument, result.Kind, existing.Kind)
	}

	st := cloneState(existing)
	if st.Kind == "" {
		st.Kind = rubric.Kind
		st.Type = rubric.Type
	}
	for _, it := range result.Items {
		in := domain.ScoreEntry{
			Points:    it.Points,
			MaxPoints: it.MaxPoints,
			Comment:   it.Comment,
			Source:    source,
			Timestamp: ts.UTC(),
		}
		cur, ok := st.Entries[it.Key]
		switch {
		case !ok:
			st.Entries[it.Key] = in
			rep.Stored++
		case cur.Source == domain.SourceManual && in.Source == domain.SourceAI:
			st.Shadow[it.Key] = laterOf(st.Shadow, it.Key, in)
			rep.Shadowed++
			rep.Disagreements = append(rep.Disagreements, Disagreement{Key: it.Key, AI: in.Points, Manual: cur.Points})
		case cur.Source == domain.SourceAI && in.Source == domain.SourceManual:
			st.Shadow[it.Key] = laterOf(st.Shadow, it.Key, cur)
			st.Entries[it.Key] = in
			rep.Overwritten++
			rep.Disagreements = append(rep.Disagreements, Disagreement{Key: it.Key, AI: cur.Points, Manual: in.Points})
		default:
			w := winner(cur, in)
			if w == cur {
				rep.Unchanged++
			} else {
				rep.Overwritten++
			}
			st.Entries[it.Key] = w
		}
	}

	if fb := strings.TrimSpace(result.Feedback); fb != "" && feedbackWins(st, fb, source, ts.UTC()) {
		st.Feedback = fb
		st.FeedbackSource = source
		st.FeedbackAt = ts.UTC()
	}
	recompute(&st, rubric)
	st.Status = domain.StatusEvaluated
	st.LastFailure = nil
	if ts.After(st.UpdatedAt) {
		st.UpdatedAt = ts.UTC()
	}
	return st, rep, nil
}

// RecordFailure keeps the previous scores and notes why the latest evaluation
// fell back to a placeholder. The status does not change.
func RecordFailure(existing domain.ExerciseScoreState, placeholder domain.RubricResult, cause error, ts time.Time) (domain.ExerciseScoreState, error) {
	if existing.Status == domain.StatusPublished {
		return existing, domain.ErrPublished
	}
	st := cloneState(existing)
	st.LastFailure = &domain.Failure{
		Code:    domain.FailureCode(cause),
		Field:   domain.FailureField(cause),
		Message: placeholder.Feedback,
		At:      ts.UTC(),
	}
	if ts.After(st.UpdatedAt) {
		st.UpdatedAt = ts.UTC()
	}
	return st, nil
}

// Freeze publishes a state. Nothing mutates it afterwards.
func Freeze(existing domain.ExerciseScoreState, ts time.Time) (domain.ExerciseScoreState, error) {
	if err := Transition(existing.Status, domain.StatusPublished); err != nil {
		return existing, err
	}
	st := cloneState(existing)
	at := ts.UTC()
	st.Status = domain.StatusPublished
	st.PublishedAt = &at
	st.UpdatedAt = at
	return st, nil
}

// feedbackWins orders summaries like entries: a trainer's outranks the
// grader's, then the later one wins, then the larger text.
func feedbackWins(st domain.ExerciseScoreState, text string, source domain.Source, at time.Time) bool {
	if st.Feedback == "" {
		return true
	}
	if r, cur := sourceRank(source), sourceRank(st.FeedbackSource); r != cur {
		return r > cur
	}
	if !at.Equal(st.FeedbackAt) {
		return at.After(st.FeedbackAt)
	}
	return text > st.Feedback
}

func sourceRank(s domain.Source) int {
	switch s {
	case domain.SourceManual:
		return 2
	case domain.SourceAI:
		return 1
	}
	return 0
}

func recompute(st *domain.ExerciseScoreState, rubric domain.Rubric) {
	b := CalculateEntries(st.Entries, rubric)
	st.GroupTotals = b.GroupTotals
	st.TotalScore = b.TotalScore
	st.MaxScore = b.MaxScore
	st.FinalScore = b.FinalScore
}

func laterOf(slots map[domain.ItemKey]domain.ScoreEntry, k domain.ItemKey, in domain.ScoreEntry) domain.ScoreEntry {
	cur, ok := slots[k]
	if !ok {
		return in
	}
	return winner(cur, in)
}

// winner picks between two entries of the same slot. The order of arguments
// does not matter: ties on timestamp fall back to points, then comment.
func winner(a, b domain.ScoreEntry) domain.ScoreEntry {
	switch {
	case b.Timestamp.After(a.Timestamp):
		return b
	case a.Timestamp.After(b.Timestamp):
		return a
	case b.Points > a.Points:
		return b
	case a.Points > b.Points:
		return a
	case b.Comment > a.Comment:
		return b
	default:
		return a
	}
}

func cloneState(s domain.ExerciseScoreState) domain.ExerciseScoreState {
	out := s
	out.Entries = make(map[domain.ItemKey]domain.ScoreEntry, len(s.Entries))
	for k, v := range s.Entries {
		out.Entries[k] = v
	}
	out.Shadow = make(map[domain.ItemKey]domain.ScoreEntry, len(s.Shadow))
	for k, v := range s.Shadow {
		out.Shadow[k] = v
	}
	if s.GroupTotals != nil {
		out.GroupTotals = make(map[string]float64, len(s.GroupTotals))
		for k, v := range s.GroupTotals {
			out.GroupTotals[k] = v
		}
	}
	if s.LastFailure != nil {
		f := *s.LastFailure
		out.LastFailure = &f
	}
	if s.PublishedAt != nil {
		t := *s.PublishedAt
		out.PublishedAt = &t
	}
	return out
}
