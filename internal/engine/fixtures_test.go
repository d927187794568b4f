package engine

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func characteristicRubric() domain.Rubric {
	sections := []domain.ItemRule{
		{Key: "description", MaxPoints: 2, Aliases: []string{"Description"}},
		{Key: "advantages", MaxPoints: 2, Aliases: []string{"Avantages", "Advantage"}},
		{Key: "benefits", MaxPoints: 2, Aliases: []string{"Bénéfices", "Benefit"}},
		{Key: "proofs", MaxPoints: 2, Aliases: []string{"Preuves", "Proof"}},
		{Key: "control_question", MaxPoints: 2, Aliases: []string{"Question de contrôle"}},
	}
	r := domain.Rubric{Kind: "characteristics", Type: domain.ExerciseCharacteristic, RescaleTarget: 100, ReducedMax: 70}
	for i := 1; i <= 8; i++ {
		r.Groups = append(r.Groups, domain.GroupRule{ID: strconv.Itoa(i), Items: sections, Optional: i == 8})
	}
	return r
}

func dialogueRubric() domain.Rubric {
	r := domain.Rubric{Kind: "discovery_call", Type: domain.ExerciseDialogue, RescaleTarget: 20, KeepFractional: true}
	for i := 1; i <= 3; i++ {
		r.Groups = append(r.Groups, domain.GroupRule{ID: strconv.Itoa(i), Items: []domain.ItemRule{
			{Key: "commercial", MaxPoints: 2, Allowed: []float64{0, 1, 2}, Aliases: []string{"Vendeur", "seller"}},
			{Key: "client", MaxPoints: 0.25, Allowed: []float64{0, 0.25}},
		}})
	}
	return r
}

func sectionRubric() domain.Rubric {
	answers := func(n int) []domain.ItemRule {
		out := make([]domain.ItemRule, n)
		for i := range out {
			out[i] = domain.ItemRule{Key: strconv.Itoa(i + 1), MaxPoints: 2}
		}
		return out
	}
	return domain.Rubric{Kind: "questioning", Type: domain.ExerciseSection, RescaleTarget: 100, Groups: []domain.GroupRule{
		{ID: "open", Items: answers(2)},
		{ID: "closed", Items: answers(3)},
	}}
}

func objectionRubric() domain.Rubric {
	stages := []domain.ItemRule{
		{Key: "listen", MaxPoints: 4, Aliases: []string{"Écoute"}},
		{Key: "reformulate", MaxPoints: 4, Aliases: []string{"Reformulation"}},
		{Key: "answer", MaxPoints: 4, Aliases: []string{"Réponse"}},
		{Key: "confirmation", MaxPoints: 4},
	}
	return domain.Rubric{Kind: "objections", Type: domain.ExerciseObjection, RescaleTarget: 100, Groups: []domain.GroupRule{
		{ID: "1", Items: stages},
		{ID: "2", Items: stages},
	}}
}

func freeScoreRubric(kind string, max float64) domain.Rubric {
	return domain.Rubric{Kind: kind, Type: domain.ExerciseFreeScore, RescaleTarget: max, Groups: []domain.GroupRule{
		{ID: "overall", Items: []domain.ItemRule{{Key: "score", MaxPoints: max}}},
	}}
}

func testCatalogue() domain.Catalogue {
	rubrics := []domain.Rubric{
		characteristicRubric(),
		dialogueRubric(),
		sectionRubric(),
		objectionRubric(),
		freeScoreRubric("final_exam", 680),
	}
	cat := domain.Catalogue{Rubrics: map[string]domain.Rubric{}}
	for _, r := range rubrics {
		cat.Rubrics[r.Kind] = r
	}
	cat.Certification = []domain.CertificationEntry{
		{Kind: "characteristics", MaxPoints: 100},
		{Kind: "discovery_call", MaxPoints: 20},
		{Kind: "objections", MaxPoints: 100},
		{Kind: "final_exam", MaxPoints: 680, FinalExam: true},
	}
	return cat
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testCatalogue(), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	return e
}

// characteristicPass scores groups 1..n, section i getting perGroup[i].
func characteristicPass(groups int, perGroup []float64) domain.RubricResult {
	keys := []string{"description", "advantages", "benefits", "proofs", "control_question"}
	res := domain.RubricResult{Kind: "characteristics", Type: domain.ExerciseCharacteristic}
	for g := 1; g <= groups; g++ {
		for i, k := range keys {
			res.Items = append(res.Items, domain.ScoredItem{
				Key:       domain.ItemKey{GroupID: strconv.Itoa(g), Item: k},
				Points:    perGroup[i],
				MaxPoints: 2,
			})
		}
	}
	return res
}
