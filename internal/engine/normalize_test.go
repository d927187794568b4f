package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func mustExtract(t *testing.T, raw string) any {
	t.Helper()
	v, err := Extract(raw)
	require.NoError(t, err)
	return v
}

func TestNormalize_Characteristic(t *testing.T) {
	t.Parallel()

	raw := `{ "responses": [
		{ "characteristic": 1, "section": "Description", "score": 2, "maxPoints": 2, "comment": "clear" },
		{ "characteristic": "1", "section": "Bénéfices", "score": 2.003, "comment": "close" },
		{ "characteristic": 8, "section": "Preuves", "score": 0, "comment": "" }
	], "globalComment": "Solid structure." }`

	res, err := Normalize(mustExtract(t, raw), characteristicRubric())
	require.NoError(t, err)
	assert.Equal(t, "characteristics", res.Kind)
	assert.Equal(t, domain.ExerciseCharacteristic, res.Type)
	assert.Equal(t, "Solid structure.", res.Feedback)
	require.Len(t, res.Items, 3)
	assert.Equal(t, domain.ItemKey{GroupID: "1", Item: "description"}, res.Items[0].Key)
	assert.Equal(t, domain.ItemKey{GroupID: "1", Item: "benefits"}, res.Items[1].Key)
	assert.Equal(t, 2.0, res.Items[1].Points, "near miss snaps to the legal maximum")
	assert.Equal(t, domain.ItemKey{GroupID: "8", Item: "proofs"}, res.Items[2].Key)
	assert.Equal(t, 2.0, res.Items[2].MaxPoints)
}

func TestNormalize_DecomposedAccentMatchesAlias(t *testing.T) {
	t.Parallel()

	v := []any{map[string]any{"characteristic": 2.0, "section": "Be\u0301ne\u0301fices", "score": 1.0}}
	res, err := Normalize(v, characteristicRubric())
	require.NoError(t, err)
	assert.Equal(t, "benefits", res.Items[0].Key.Item)
}

func TestNormalize_Dialogue(t *testing.T) {
	t.Parallel()

	raw := `[
		{"line": 1, "role": "Vendeur", "score": 2, "comment": "good hook"},
		{"line": 1, "role": "client", "score": 0.25},
		{"line": "2", "role": "commercial", "score": 1}
	]`
	res, err := Normalize(mustExtract(t, raw), dialogueRubric())
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, domain.ItemKey{GroupID: "1", Item: "commercial"}, res.Items[0].Key)
	assert.Equal(t, 0.25, res.Items[1].Points)
	assert.Empty(t, res.Feedback)
}

func TestNormalize_Section(t *testing.T) {
	t.Parallel()

	raw := `{"sections": [
		{"id": "open", "answers": [{"score": 2, "comment": "a"}, {"score": 1, "comment": "b"}]},
		{"id": "closed", "answers": [{"score": 0}, {"score": 2}, {"score": 2}]}
	], "feedback": "Ask more open questions."}`
	res, err := Normalize(mustExtract(t, raw), sectionRubric())
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Equal(t, domain.ItemKey{GroupID: "closed", Item: "3"}, res.Items[4].Key)
	assert.Equal(t, "Ask more open questions.", res.Feedback)
}

func TestNormalize_Objection(t *testing.T) {
	t.Parallel()

	raw := `{"responses": [
		{"objection": 1, "category": "Écoute", "score": 4, "comment": "listened"},
		{"objection": 1, "category": "confirmation", "score": 3}
	]}`
	res, err := Normalize(mustExtract(t, raw), objectionRubric())
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "listen", res.Items[0].Key.Item)
	assert.Equal(t, 4.0, res.Items[0].MaxPoints)
}

func TestNormalize_FreeScore(t *testing.T) {
	t.Parallel()

	res, err := Normalize(mustExtract(t, `{"score": 512.5, "feedback": "Passed."}`), freeScoreRubric("final_exam", 680))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, domain.ItemKey{GroupID: "overall", Item: "score"}, res.Items[0].Key)
	assert.Equal(t, 512.5, res.Items[0].Points)
	assert.Equal(t, "Passed.", res.Items[0].Comment)
	assert.Equal(t, "Passed.", res.Feedback)
}

func TestNormalize_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rubric     domain.Rubric
		raw        string
		field      string
		outOfRange bool
	}{
		{"unknown section alias", characteristicRubric(), `[{"characteristic":1,"section":"Bénéfice client","score":1}]`, "responses[0].section", false},
		{"characteristic out of bounds", characteristicRubric(), `[{"characteristic":9,"section":"Description","score":1}]`, "responses[0].characteristic", false},
		{"fractional characteristic", characteristicRubric(), `[{"characteristic":1.5,"section":"Description","score":1}]`, "responses[0].characteristic", false},
		{"score as string", characteristicRubric(), `[{"characteristic":1,"section":"Description","score":"2"}]`, "responses[0].score", false},
		{"missing score", characteristicRubric(), `[{"characteristic":1,"section":"Description"}]`, "responses[0].score", false},
		{"score above max", characteristicRubric(), `[{"characteristic":1,"section":"Description","score":3}]`, "responses[0].score", true},
		{"negative score", characteristicRubric(), `[{"characteristic":1,"section":"Description","score":-1}]`, "responses[0].score", true},
		{"duplicate key through alias", characteristicRubric(), `[{"characteristic":1,"section":"Proof","score":1},{"characteristic":1,"section":"proofs","score":2}]`, "responses[1]", false},
		{"role not declared", dialogueRubric(), `[{"line":1,"role":"manager","score":1}]`, "responses[0].role", false},
		{"unknown line", dialogueRubric(), `[{"line":4,"role":"client","score":0}]`, "responses[0].line", false},
		{"client score outside set", dialogueRubric(), `[{"line":1,"role":"client","score":0.5}]`, "responses[0].score", true},
		{"commercial half point", dialogueRubric(), `[{"line":1,"role":"commercial","score":1.5}]`, "responses[0].score", true},
		{"section count mismatch", sectionRubric(), `{"sections":[{"id":"open","answers":[{"score":1}]}]}`, "sections[0].answers", false},
		{"sections missing", sectionRubric(), `{"answers":[]}`, "$.sections", false},
		{"unknown stage", objectionRubric(), `{"responses":[{"objection":1,"category":"close","score":1}]}`, "responses[0].category", false},
		{"objection above max", objectionRubric(), `{"responses":[{"objection":2,"category":"answer","score":5}]}`, "responses[0].score", true},
		{"responses not an array", objectionRubric(), `{"responses":{"objection":1}}`, "$.responses", false},
		{"free score comment wrong type", freeScoreRubric("final_exam", 680), `{"score":10,"comment":5}`, "$.comment", false},
		{"free score above max", freeScoreRubric("final_exam", 680), `{"score":700}`, "$.score", true},
		{"entry not an object", characteristicRubric(), `[1]`, "responses[0]", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(mustExtract(t, tt.raw), tt.rubric)
			require.ErrorIs(t, err, domain.ErrSchemaViolation)
			var sv *domain.SchemaViolationError
			require.True(t, errors.As(err, &sv))
			assert.Equal(t, tt.field, sv.Field)
			assert.Equal(t, tt.outOfRange, errors.Is(err, domain.ErrOutOfRangeScore))
		})
	}
}

func TestNormalize_ExtraKeysIgnored(t *testing.T) {
	t.Parallel()

	raw := `{"model":"x","responses":[{"characteristic":3,"section":"description","score":1,"confidence":0.9}]}`
	res, err := Normalize(mustExtract(t, raw), characteristicRubric())
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}

func TestNormalizeManual(t *testing.T) {
	t.Parallel()

	rubric := characteristicRubric()
	res, err := NormalizeManual(rubric, []domain.ScoredItem{
		{Key: domain.ItemKey{GroupID: "2", Item: "Avantages"}, Points: 1, Comment: " needs numbers \x00"},
	}, "Keep going")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, domain.ItemKey{GroupID: "2", Item: "advantages"}, res.Items[0].Key)
	assert.Equal(t, "needs numbers", res.Items[0].Comment)
	assert.Equal(t, 2.0, res.Items[0].MaxPoints)
	assert.Equal(t, "Keep going", res.Feedback)

	_, err = NormalizeManual(rubric, []domain.ScoredItem{{Key: domain.ItemKey{GroupID: "2", Item: "proofs"}, Points: 2.5}}, "")
	assert.ErrorIs(t, err, domain.ErrOutOfRangeScore)

	_, err = NormalizeManual(rubric, []domain.ScoredItem{{Key: domain.ItemKey{GroupID: "12", Item: "proofs"}, Points: 1}}, "")
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)
}
