package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func key(g, item string) domain.ItemKey { return domain.ItemKey{GroupID: g, Item: item} }

func pass(points float64, comment string) domain.RubricResult {
	return domain.RubricResult{
		Kind:  "characteristics",
		Type:  domain.ExerciseCharacteristic,
		Items: []domain.ScoredItem{{Key: key("1", "proofs"), Points: points, MaxPoints: 2, Comment: comment}},
	}
}

func withFeedback(res domain.RubricResult, fb string) domain.RubricResult {
	res.Feedback = fb
	return res
}

func submitted() domain.ExerciseScoreState {
	st := domain.NewExerciseScoreState("ex-1", "learner-1", "characteristics", domain.ExerciseCharacteristic)
	st.Status = domain.StatusSubmitted
	return st
}

func TestMerge_SlotRules(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()

	t.Run("empty slot stores", func(t *testing.T) {
		t.Parallel()
		st, rep, err := Merge(submitted(), pass(1, "ai"), domain.SourceAI, t0, rubric)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Stored)
		assert.Equal(t, domain.SourceAI, st.Entries[key("1", "proofs")].Source)
		assert.Equal(t, domain.StatusEvaluated, st.Status)
		assert.Equal(t, 1.0, st.TotalScore)
	})

	t.Run("ai never displaces manual", func(t *testing.T) {
		t.Parallel()
		st, _, err := Merge(submitted(), pass(2, "trainer"), domain.SourceManual, t0, rubric)
		require.NoError(t, err)
		st, rep, err := Merge(st, pass(0, "ai"), domain.SourceAI, t0.Add(time.Hour), rubric)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Shadowed)
		assert.Equal(t, []Disagreement{{Key: key("1", "proofs"), AI: 0, Manual: 2}}, rep.Disagreements)
		assert.Equal(t, 2.0, st.Entries[key("1", "proofs")].Points)
		assert.Equal(t, domain.SourceAI, st.Shadow[key("1", "proofs")].Source)
		assert.Equal(t, 2.0, st.TotalScore)
	})

	t.Run("manual displaces ai into shadow", func(t *testing.T) {
		t.Parallel()
		st, _, err := Merge(submitted(), pass(0, "ai"), domain.SourceAI, t0, rubric)
		require.NoError(t, err)
		st, rep, err := Merge(st, pass(2, "trainer"), domain.SourceManual, t0.Add(-time.Hour), rubric)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Overwritten)
		assert.Equal(t, domain.SourceManual, st.Entries[key("1", "proofs")].Source)
		assert.Equal(t, 0.0, st.Shadow[key("1", "proofs")].Points)
	})

	t.Run("same source later timestamp wins", func(t *testing.T) {
		t.Parallel()
		st, _, err := Merge(submitted(), pass(1, "second"), domain.SourceManual, t0.Add(time.Minute), rubric)
		require.NoError(t, err)
		st, rep, err := Merge(st, pass(2, "first"), domain.SourceManual, t0, rubric)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Unchanged)
		assert.Equal(t, "second", st.Entries[key("1", "proofs")].Comment)
	})
}

func TestMerge_Commutative(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	type step struct {
		res domain.RubricResult
		src domain.Source
		ts  time.Time
	}
	a := step{withFeedback(pass(0, "ai first"), "AI first"), domain.SourceAI, t0}
	b := step{withFeedback(pass(1, "ai retry"), "AI retry"), domain.SourceAI, t0.Add(time.Minute)}
	m := step{withFeedback(pass(2, "trainer"), "Trainer"), domain.SourceManual, t0.Add(30 * time.Second)}
	tie := step{withFeedback(pass(1.5, "trainer tie"), "Trainer tie"), domain.SourceManual, t0.Add(30 * time.Second)}

	orders := [][]step{
		{a, b, m, tie},
		{tie, m, b, a},
		{m, a, tie, b},
		{b, tie, a, m},
	}
	var first domain.ExerciseScoreState
	for i, order := range orders {
		st := submitted()
		for _, s := range order {
			var err error
			st, _, err = Merge(st, s.res, s.src, s.ts, rubric)
			require.NoError(t, err)
		}
		if i == 0 {
			first = st
			continue
		}
		assert.Equal(t, first.Entries, st.Entries, "order %d", i)
		assert.Equal(t, first.Shadow, st.Shadow, "order %d", i)
		assert.Equal(t, first.TotalScore, st.TotalScore, "order %d", i)
		assert.Equal(t, first.Feedback, st.Feedback, "order %d", i)
		assert.Equal(t, first.FeedbackSource, st.FeedbackSource, "order %d", i)
		assert.Equal(t, first.FeedbackAt, st.FeedbackAt, "order %d", i)
	}
	assert.Equal(t, "trainer", first.Entries[key("1", "proofs")].Comment)
	assert.Equal(t, "ai retry", first.Shadow[key("1", "proofs")].Comment)
	assert.Equal(t, "Trainer tie", first.Feedback)
	assert.Equal(t, domain.SourceManual, first.FeedbackSource)
	assert.Equal(t, t0.Add(30*time.Second), first.FeedbackAt)
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	once, _, err := Merge(submitted(), characteristicPass(7, []float64{2, 2, 2, 2, 0}), domain.SourceAI, t0, rubric)
	require.NoError(t, err)
	twice, rep, err := Merge(once, characteristicPass(7, []float64{2, 2, 2, 2, 0}), domain.SourceAI, t0, rubric)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, 35, rep.Unchanged)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	orig, _, err := Merge(submitted(), pass(1, "ai"), domain.SourceAI, t0, rubric)
	require.NoError(t, err)
	snapshot := cloneState(orig)

	_, _, err = Merge(orig, pass(2, "trainer"), domain.SourceManual, t0.Add(time.Hour), rubric)
	require.NoError(t, err)
	assert.Equal(t, snapshot, orig)
	assert.Empty(t, orig.Shadow)
}

func TestMerge_PublishedRejected(t *testing.T) {
	t.Parallel()

	st := submitted()
	st.Status = domain.StatusPublished
	st.Entries[key("1", "proofs")] = domain.ScoreEntry{Points: 1, MaxPoints: 2, Source: domain.SourceManual}

	got, _, err := Merge(st, pass(2, "late"), domain.SourceManual, t0, characteristicRubric())
	assert.True(t, errors.Is(err, domain.ErrPublished))
	assert.Equal(t, st, got)
}

func TestMerge_Feedback(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	ai := pass(1, "")
	ai.Feedback = "AI summary"
	manual := pass(2, "")
	manual.Feedback = "Trainer summary"

	st, _, err := Merge(submitted(), manual, domain.SourceManual, t0, rubric)
	require.NoError(t, err)
	st, _, err = Merge(st, ai, domain.SourceAI, t0.Add(time.Hour), rubric)
	require.NoError(t, err)
	assert.Equal(t, "Trainer summary", st.Feedback)
	assert.Equal(t, domain.SourceManual, st.FeedbackSource)
}

func TestMerge_FeedbackOrderIndependent(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	tests := []struct {
		name     string
		x, y     domain.RubricResult
		xAt, yAt time.Time
		want     string
	}{
		{"later grader pass wins", withFeedback(pass(1, ""), "first"), withFeedback(pass(1, ""), "second"), t0, t0.Add(time.Second), "second"},
		{"same instant breaks on text", withFeedback(pass(1, ""), "alpha"), withFeedback(pass(1, ""), "beta"), t0, t0, "beta"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			xy, _, err := Merge(submitted(), tt.x, domain.SourceAI, tt.xAt, rubric)
			require.NoError(t, err)
			xy, _, err = Merge(xy, tt.y, domain.SourceAI, tt.yAt, rubric)
			require.NoError(t, err)

			yx, _, err := Merge(submitted(), tt.y, domain.SourceAI, tt.yAt, rubric)
			require.NoError(t, err)
			yx, _, err = Merge(yx, tt.x, domain.SourceAI, tt.xAt, rubric)
			require.NoError(t, err)

			assert.Equal(t, tt.want, xy.Feedback)
			assert.Equal(t, tt.want, yx.Feedback)
			assert.Equal(t, xy.FeedbackAt, yx.FeedbackAt)
		})
	}
}

func TestMerge_RequiresSubmission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  domain.ExerciseStatus
		wantErr error
	}{
		{domain.StatusNotStarted, domain.ErrConflict},
		{domain.StatusInProgress, domain.ErrConflict},
		{domain.StatusCompleted, domain.ErrPublished},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			st := submitted()
			st.Status = tt.status

			got, rep, err := Merge(st, pass(2, "trainer"), domain.SourceManual, t0, characteristicRubric())
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, st, got)
			assert.Zero(t, rep.Stored)
		})
	}
}

func TestRecordFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	cause := &domain.SchemaViolationError{Field: "responses[0].section", Reason: "unknown section"}
	ph := e.Placeholder("characteristics", cause)
	assert.Empty(t, ph.Items)
	assert.NotEmpty(t, ph.Feedback)

	st, err := RecordFailure(submitted(), ph, cause, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, st.Status)
	require.NotNil(t, st.LastFailure)
	assert.Equal(t, domain.FailureSchemaViolation, st.LastFailure.Code)
	assert.Equal(t, "responses[0].section", st.LastFailure.Field)
	assert.Empty(t, st.Entries)
}
