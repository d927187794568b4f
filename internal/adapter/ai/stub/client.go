// Package stub provides a deterministic grader for local runs and tests.
package stub

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// Client answers every grading request with a well-formed response built from
// the first catalogue rubric of the requested type. Every item gets its best
// allowed score except the last item of each group, which gets its lowest.
type Client struct {
	rubrics map[domain.ExerciseType]domain.Rubric
}

var _ domain.AIGrader = (*Client)(nil)

// New indexes cat by exercise type.
func New(cat domain.Catalogue) *Client {
	kinds := make([]string, 0, len(cat.Rubrics))
	for k := range cat.Rubrics {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	c := &Client{rubrics: map[domain.ExerciseType]domain.Rubric{}}
	for _, k := range kinds {
		r := cat.Rubrics[k]
		cur, ok := c.rubrics[r.Type]
		// free scores are shared across kinds, keep the tightest maximum
		if !ok || (r.Type == domain.ExerciseFreeScore && r.Groups[0].MaxPoints() < cur.Groups[0].MaxPoints()) {
			c.rubrics[r.Type] = r
		}
	}
	return c
}

// Grade ignores the submission text apart from rejecting empty input.
func (c *Client) Grade(_ domain.Context, _ string, t domain.ExerciseType, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("op=stub.grade: %w: empty submission", domain.ErrInvalidArgument)
	}
	r, ok := c.rubrics[t]
	if !ok {
		return "", fmt.Errorf("op=stub.grade: %w: no rubric of type %q", domain.ErrInvalidArgument, t)
	}
	b, err := json.Marshal(response(r))
	if err != nil {
		return "", fmt.Errorf("op=stub.grade: %w", err)
	}
	return string(b), nil
}

func score(it domain.ItemRule, last bool) float64 {
	if len(it.Allowed) > 0 {
		lo, hi := it.Allowed[0], it.Allowed[0]
		for _, v := range it.Allowed {
			lo, hi = min(lo, v), max(hi, v)
		}
		if last {
			return lo
		}
		return hi
	}
	if last {
		return 0
	}
	return it.MaxPoints
}

func groupID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func response(r domain.Rubric) any {
	const feedback = "Automatic evaluation (stub grader)."
	switch r.Type {
	case domain.ExerciseFreeScore:
		it := r.Groups[0].Items[0]
		return map[string]any{"score": it.MaxPoints / 2, "comment": feedback}
	case domain.ExerciseSection:
		sections := make([]map[string]any, 0, len(r.Groups))
		for _, g := range r.Groups {
			answers := make([]map[string]any, 0, len(g.Items))
			for i, it := range g.Items {
				answers = append(answers, map[string]any{"score": score(it, i == len(g.Items)-1), "comment": "ok"})
			}
			sections = append(sections, map[string]any{"id": g.ID, "answers": answers})
		}
		return map[string]any{"sections": sections, "feedback": feedback}
	}

	groupField, itemField := "line", "role"
	switch r.Type {
	case domain.ExerciseCharacteristic:
		groupField, itemField = "characteristic", "section"
	case domain.ExerciseObjection:
		groupField, itemField = "objection", "category"
	}
	var entries []map[string]any
	for _, g := range r.Groups {
		if g.Optional {
			continue
		}
		for i, it := range g.Items {
			entries = append(entries, map[string]any{
				groupField: groupID(g.ID),
				itemField:  it.Key,
				"score":    score(it, i == len(g.Items)-1),
				"comment":  "ok",
			})
		}
	}
	return map[string]any{"responses": entries, "feedback": feedback}
}
