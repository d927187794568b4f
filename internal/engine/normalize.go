package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/pkg/textx"
)

// snapTolerance is the largest distance to a legal value that is still read as that value.
const snapTolerance = 0.005

const maxCommentRunes = 2000

// Normalize validates a parsed grader response against the shape of the
// rubric's exercise type and maps it to a RubricResult.
func Normalize(v any, rubric domain.Rubric) (domain.RubricResult, error) {
	var (
		items []domain.ScoredItem
		err   error
	)
	switch rubric.Type {
	case domain.ExerciseDialogue:
		items, err = normalizeDialogue(v, rubric)
	case domain.ExerciseCharacteristic:
		items, err = normalizeCharacteristic(v, rubric)
	case domain.ExerciseSection:
		items, err = normalizeSection(v, rubric)
	case domain.ExerciseObjection:
		items, err = normalizeObjection(v, rubric)
	case domain.ExerciseFreeScore:
		items, err = normalizeFreeScore(v, rubric)
	default:
		return domain.RubricResult{}, fmt.Errorf("%w: exercise type %q", domain.ErrInvalidArgument, rubric.Type)
	}
	if err != nil {
		return domain.RubricResult{}, err
	}
	return domain.RubricResult{
		Kind:     rubric.Kind,
		Type:     rubric.Type,
		Items:    items,
		Feedback: topFeedback(v),
	}, nil
}

// NormalizeManual validates trainer-entered items. Item labels go through the
// same alias tables as grader output.
func NormalizeManual(rubric domain.Rubric, in []domain.ScoredItem, feedback string) (domain.RubricResult, error) {
	c := newCollector(rubric)
	for i, it := range in {
		path := fmt.Sprintf("items[%d]", i)
		g, ok := rubric.Group(it.Key.GroupID)
		if !ok {
			return domain.RubricResult{}, violation(path+".group_id", "unknown group %q", it.Key.GroupID)
		}
		rule, ok := g.Item(it.Key.Item)
		if !ok {
			return domain.RubricResult{}, violation(path+".item", "item %q not declared for group %s", it.Key.Item, g.ID)
		}
		if err := c.add(path, g, rule, it.Points, it.Comment); err != nil {
			return domain.RubricResult{}, err
		}
	}
	return domain.RubricResult{
		Kind:     rubric.Kind,
		Type:     rubric.Type,
		Items:    c.items,
		Feedback: textx.TrimSentence(textx.SanitizeText(feedback), maxCommentRunes),
	}, nil
}

func normalizeDialogue(v any, rubric domain.Rubric) ([]domain.ScoredItem, error) {
	entries, err := responseEntries(v)
	if err != nil {
		return nil, err
	}
	c := newCollector(rubric)
	for i, raw := range entries {
		path := fmt.Sprintf("responses[%d]", i)
		e, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		line, err := idField(e, path, "line")
		if err != nil {
			return nil, err
		}
		g, ok := rubric.Group(line)
		if !ok {
			return nil, violation(path+".line", "unknown line %q", line)
		}
		role, err := stringField(e, path, "role")
		if err != nil {
			return nil, err
		}
		rule, ok := g.Item(role)
		if !ok {
			return nil, violation(path+".role", "role %q not declared for line %s", role, line)
		}
		if err := c.addEntry(path, e, g, rule); err != nil {
			return nil, err
		}
	}
	return c.items, nil
}

func normalizeCharacteristic(v any, rubric domain.Rubric) ([]domain.ScoredItem, error) {
	entries, err := responseEntries(v)
	if err != nil {
		return nil, err
	}
	c := newCollector(rubric)
	for i, raw := range entries {
		path := fmt.Sprintf("responses[%d]", i)
		e, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		id, err := idField(e, path, "characteristic")
		if err != nil {
			return nil, err
		}
		g, ok := rubric.Group(id)
		if !ok {
			return nil, violation(path+".characteristic", "unknown characteristic %q", id)
		}
		section, err := stringField(e, path, "section")
		if err != nil {
			return nil, err
		}
		rule, ok := g.Item(section)
		if !ok {
			return nil, violation(path+".section", "unknown section %q", section)
		}
		if err := c.addEntry(path, e, g, rule); err != nil {
			return nil, err
		}
	}
	return c.items, nil
}

func normalizeSection(v any, rubric domain.Rubric) ([]domain.ScoredItem, error) {
	root, err := asObject(v, "$")
	if err != nil {
		return nil, err
	}
	sections, err := arrayField(root, "$", "sections")
	if err != nil {
		return nil, err
	}
	c := newCollector(rubric)
	for i, raw := range sections {
		path := fmt.Sprintf("sections[%d]", i)
		s, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		id, err := idField(s, path, "id")
		if err != nil {
			return nil, err
		}
		g, ok := rubric.Group(id)
		if !ok {
			return nil, violation(path+".id", "unknown section %q", id)
		}
		answers, err := arrayField(s, path, "answers")
		if err != nil {
			return nil, err
		}
		if len(answers) != len(g.Items) {
			return nil, violation(path+".answers", "section %s expects %d answers, got %d", id, len(g.Items), len(answers))
		}
		for j, a := range answers {
			apath := fmt.Sprintf("%s.answers[%d]", path, j)
			e, err := asObject(a, apath)
			if err != nil {
				return nil, err
			}
			if err := c.addEntry(apath, e, g, g.Items[j]); err != nil {
				return nil, err
			}
		}
	}
	return c.items, nil
}

func normalizeObjection(v any, rubric domain.Rubric) ([]domain.ScoredItem, error) {
	entries, err := responseEntries(v)
	if err != nil {
		return nil, err
	}
	c := newCollector(rubric)
	for i, raw := range entries {
		path := fmt.Sprintf("responses[%d]", i)
		e, err := asObject(raw, path)
		if err != nil {
			return nil, err
		}
		id, err := idField(e, path, "objection")
		if err != nil {
			return nil, err
		}
		g, ok := rubric.Group(id)
		if !ok {
			return nil, violation(path+".objection", "unknown objection %q", id)
		}
		category, err := stringField(e, path, "category")
		if err != nil {
			return nil, err
		}
		rule, ok := g.Item(category)
		if !ok {
			return nil, violation(path+".category", "unknown stage %q", category)
		}
		if err := c.addEntry(path, e, g, rule); err != nil {
			return nil, err
		}
	}
	return c.items, nil
}

func normalizeFreeScore(v any, rubric domain.Rubric) ([]domain.ScoredItem, error) {
	root, err := asObject(v, "$")
	if err != nil {
		return nil, err
	}
	g := rubric.Groups[0]
	rule := g.Items[0]
	score, err := numberField(root, "$", "score")
	if err != nil {
		return nil, err
	}
	comment, err := optionalString(root, "$", "comment")
	if err != nil {
		return nil, err
	}
	if comment == "" {
		if comment, err = optionalString(root, "$", "feedback"); err != nil {
			return nil, err
		}
	}
	c := newCollector(rubric)
	if err := c.add("$", g, rule, score, comment); err != nil {
		return nil, err
	}
	return c.items, nil
}

type collector struct {
	rubric domain.Rubric
	seen   map[domain.ItemKey]string
	items  []domain.ScoredItem
}

func newCollector(r domain.Rubric) *collector {
	return &collector{rubric: r, seen: map[domain.ItemKey]string{}}
}

func (c *collector) addEntry(path string, e map[string]any, g domain.GroupRule, rule domain.ItemRule) error {
	score, err := numberField(e, path, "score")
	if err != nil {
		return err
	}
	comment, err := optionalString(e, path, "comment")
	if err != nil {
		return err
	}
	return c.add(path, g, rule, score, comment)
}

func (c *collector) add(path string, g domain.GroupRule, rule domain.ItemRule, score float64, comment string) error {
	key := domain.ItemKey{GroupID: g.ID, Item: rule.Key}
	if prev, dup := c.seen[key]; dup {
		return violation(path, "duplicate entry for %s (first at %s)", key, prev)
	}
	points, err := checkScore(path+".score", score, rule)
	if err != nil {
		return err
	}
	c.seen[key] = path
	c.items = append(c.items, domain.ScoredItem{
		Key:       key,
		Points:    points,
		MaxPoints: rule.MaxPoints,
		Comment:   textx.TrimSentence(textx.SanitizeText(comment), maxCommentRunes),
	})
	return nil
}

// checkScore validates a score against its item rule. A value within
// snapTolerance of exactly one legal value is snapped to it.
func checkScore(field string, v float64, rule domain.ItemRule) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, outOfRange(field, "score is not a finite number")
	}
	if len(rule.Allowed) > 0 {
		var (
			snapped float64
			hits    int
		)
		for _, a := range rule.Allowed {
			if v == a {
				return a, nil
			}
			if math.Abs(v-a) <= snapTolerance {
				snapped = a
				hits++
			}
		}
		if hits == 1 {
			return snapped, nil
		}
		return 0, outOfRange(field, fmt.Sprintf("%v not in %v", v, rule.Allowed))
	}
	switch {
	case v >= 0 && v <= rule.MaxPoints:
		return v, nil
	case v < 0 && v >= -snapTolerance:
		return 0, nil
	case v > rule.MaxPoints && v <= rule.MaxPoints+snapTolerance:
		return rule.MaxPoints, nil
	}
	return 0, outOfRange(field, fmt.Sprintf("%v outside [0,%v]", v, rule.MaxPoints))
}

func responseEntries(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		return arrayField(t, "$", "responses")
	default:
		return nil, violation("$", "expected an array or an object with responses, got %s", kindOf(v))
	}
}

func topFeedback(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range []string{"feedback", "globalComment"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return textx.TrimSentence(textx.SanitizeText(s), maxCommentRunes)
		}
	}
	return ""
}

func asObject(v any, path string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, violation(path, "expected an object, got %s", kindOf(v))
	}
	return m, nil
}

func arrayField(m map[string]any, path, name string) ([]any, error) {
	raw, ok := m[name]
	if !ok {
		return nil, violation(path+"."+name, "missing")
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, violation(path+"."+name, "expected an array, got %s", kindOf(raw))
	}
	return arr, nil
}

func numberField(m map[string]any, path, name string) (float64, error) {
	raw, ok := m[name]
	if !ok {
		return 0, violation(path+"."+name, "missing")
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, violation(path+"."+name, "expected a number, got %s", kindOf(raw))
	}
	return f, nil
}

func stringField(m map[string]any, path, name string) (string, error) {
	raw, ok := m[name]
	if !ok {
		return "", violation(path+"."+name, "missing")
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", violation(path+"."+name, "expected a non-empty string, got %s", kindOf(raw))
	}
	return s, nil
}

func optionalString(m map[string]any, path, name string) (string, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", violation(path+"."+name, "expected a string, got %s", kindOf(raw))
	}
	return s, nil
}

// idField reads a 1-based number or a string identifier.
func idField(m map[string]any, path, name string) (string, error) {
	raw, ok := m[name]
	if !ok {
		return "", violation(path+"."+name, "missing")
	}
	switch t := raw.(type) {
	case float64:
		if t != math.Trunc(t) || t < 1 || t > math.MaxInt32 {
			return "", violation(path+"."+name, "expected a positive integer, got %v", t)
		}
		return strconv.FormatInt(int64(t), 10), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", violation(path+"."+name, "empty identifier")
		}
		return s, nil
	default:
		return "", violation(path+"."+name, "expected a number or string, got %s", kindOf(raw))
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func violation(field, format string, args ...any) error {
	return &domain.SchemaViolationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func outOfRange(field, reason string) error {
	return &domain.SchemaViolationError{Field: field, Reason: reason, Err: domain.ErrOutOfRangeScore}
}
