package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func TestCalculate_Characteristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		groups   int
		perGroup []float64
		total    float64
		max      float64
		final    float64
		allReq   bool
	}{
		{"seven full groups at 8 of 10", 7, []float64{2, 2, 2, 2, 0}, 56, 70, 80, true},
		{"all perfect", 7, []float64{2, 2, 2, 2, 2}, 70, 70, 100, true},
		{"optional eighth scored but not counted", 8, []float64{2, 2, 2, 2, 0}, 56, 70, 80, true},
		{"missing groups keep their denominator", 3, []float64{2, 2, 2, 2, 2}, 30, 70, 43, false},
		{"nothing scored", 0, []float64{0, 0, 0, 0, 0}, 0, 70, 0, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Calculate(characteristicPass(tt.groups, tt.perGroup), characteristicRubric())
			assert.Equal(t, tt.total, b.TotalScore)
			assert.Equal(t, tt.max, b.MaxScore)
			assert.Equal(t, tt.final, b.FinalScore)
			assert.Equal(t, tt.allReq, b.AllRequiredPresent)
		})
	}
}

func TestCalculate_OptionalGroupSubtotalReported(t *testing.T) {
	t.Parallel()

	b := Calculate(characteristicPass(8, []float64{2, 2, 2, 2, 2}), characteristicRubric())
	assert.Equal(t, 10.0, b.GroupTotals["8"])
	assert.Equal(t, 70.0, b.TotalScore)
	assert.Equal(t, 100.0, b.FinalScore)
}

func TestCalculate_IncludeOptionalUsesReducedMax(t *testing.T) {
	t.Parallel()

	r := characteristicRubric()
	r.IncludeOptional = true

	// every required item present: reduced max, total clamped to it
	b := Calculate(characteristicPass(8, []float64{2, 2, 2, 2, 2}), r)
	assert.Equal(t, 70.0, b.MaxScore)
	assert.Equal(t, 70.0, b.TotalScore)
	assert.Equal(t, 100.0, b.FinalScore)

	// a required group missing: full declared max including the optional group
	b = Calculate(characteristicPass(6, []float64{2, 2, 2, 2, 2}), r)
	assert.False(t, b.AllRequiredPresent)
	assert.Equal(t, 80.0, b.MaxScore)
	assert.Equal(t, 60.0, b.TotalScore)
	assert.Equal(t, 75.0, b.FinalScore)
}

func TestCalculate_KeepFractional(t *testing.T) {
	t.Parallel()

	res := domain.RubricResult{Items: []domain.ScoredItem{
		{Key: domain.ItemKey{GroupID: "1", Item: "commercial"}, Points: 2},
		{Key: domain.ItemKey{GroupID: "1", Item: "client"}, Points: 0.25},
		{Key: domain.ItemKey{GroupID: "2", Item: "commercial"}, Points: 1},
	}}
	b := Calculate(res, dialogueRubric())
	assert.Equal(t, 3.25, b.TotalScore)
	assert.Equal(t, 6.75, b.MaxScore)
	// 3.25 / 6.75 * 20 = 9.6296...
	assert.Equal(t, 9.63, b.FinalScore)
}

func TestRoundHalfUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 81.0, roundHalfUp(57.0/70*100, 0))
	assert.Equal(t, 13.0, roundHalfUp(12.5, 0))
	assert.Equal(t, 2.68, roundHalfUp(2.675, 2))
	assert.Equal(t, 0.0, roundHalfUp(0.004, 2))
}

func TestCalculate_InvalidRubricPanics(t *testing.T) {
	t.Parallel()

	r := characteristicRubric()
	r.RescaleTarget = 0
	assert.Panics(t, func() { Calculate(domain.RubricResult{}, r) })
}
