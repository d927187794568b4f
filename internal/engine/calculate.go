package engine

import (
	"fmt"
	"math"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// Breakdown is the score of one pass or one state against its rubric.
type Breakdown struct {
	GroupTotals map[string]float64
	TotalScore  float64
	MaxScore    float64
	FinalScore  float64
	// AllRequiredPresent reports whether every required item of every required group was scored.
	AllRequiredPresent bool
}

// Calculate scores a single pass.
func Calculate(result domain.RubricResult, rubric domain.Rubric) Breakdown {
	points := make(map[domain.ItemKey]float64, len(result.Items))
	for _, it := range result.Items {
		points[it.Key] = it.Points
	}
	return calculate(points, rubric)
}

// CalculateEntries scores the authoritative slots of a state.
func CalculateEntries(entries map[domain.ItemKey]domain.ScoreEntry, rubric domain.Rubric) Breakdown {
	points := make(map[domain.ItemKey]float64, len(entries))
	for k, e := range entries {
		points[k] = e.Points
	}
	return calculate(points, rubric)
}

func calculate(points map[domain.ItemKey]float64, rubric domain.Rubric) Breakdown {
	mustBeValid(rubric)

	b := Breakdown{GroupTotals: make(map[string]float64, len(rubric.Groups)), AllRequiredPresent: true}
	for _, g := range rubric.Groups {
		var sub float64
		for _, it := range g.Items {
			p, ok := points[domain.ItemKey{GroupID: g.ID, Item: it.Key}]
			if ok {
				sub += clamp(p, 0, it.MaxPoints)
			} else if !g.Optional && it.Required() {
				b.AllRequiredPresent = false
			}
		}
		b.GroupTotals[g.ID] = sub
		if rubric.Counts(g) {
			b.TotalScore += sub
			b.MaxScore += g.MaxPoints()
		}
	}
	if rubric.ReducedMax > 0 && b.AllRequiredPresent {
		b.MaxScore = rubric.ReducedMax
		b.TotalScore = math.Min(b.TotalScore, rubric.ReducedMax)
	}
	if b.MaxScore > 0 {
		decimals := 0
		if rubric.KeepFractional {
			decimals = 2
		}
		b.FinalScore = clamp(roundHalfUp(b.TotalScore/b.MaxScore*rubric.RescaleTarget, decimals), 0, rubric.RescaleTarget)
	}
	return b
}

// mustBeValid panics on a descriptor that is missing required configuration.
// Rubrics are validated when the catalogue loads, so this only fires on a caller bug.
func mustBeValid(r domain.Rubric) {
	if err := r.Validate(); err != nil {
		panic(fmt.Sprintf("engine: invalid rubric descriptor: %v", err))
	}
}

// roundHalfUp rounds to the given number of decimals. The epsilon absorbs binary
// representation error so that 2.675 rounds to 2.68.
func roundHalfUp(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Floor(x*p+0.5+1e-9) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
