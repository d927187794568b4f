package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ItemKey addresses one scorable unit: the parent group (characteristic, section,
// objection, dialogue line) and the sub-dimension inside it.
type ItemKey struct {
	GroupID string
	Item    string
}

func (k ItemKey) String() string { return k.GroupID + "/" + k.Item }

// MarshalText renders the key as "group/item" so it can be used as a JSON object key.
func (k ItemKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CompareKeys orders keys by group, then item. Numeric ids compare as numbers.
func CompareKeys(a, b ItemKey) int {
	if c := compareIDs(a.GroupID, b.GroupID); c != 0 {
		return c
	}
	return compareIDs(a.Item, b.Item)
}

func compareIDs(a, b string) int {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

// SortedKeys returns the keys of m in CompareKeys order.
func SortedKeys[V any](m map[ItemKey]V) []ItemKey {
	keys := make([]ItemKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

func (k *ItemKey) UnmarshalText(b []byte) error {
	s := string(b)
	i := strings.IndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return fmt.Errorf("%w: item key %q", ErrInvalidArgument, s)
	}
	k.GroupID, k.Item = s[:i], s[i+1:]
	return nil
}

// ItemRule declares one item of a rubric group.
// Allowed, when set, is the enumerated set of legal scores.
type ItemRule struct {
	Key       string    `yaml:"key" json:"key"`
	MaxPoints float64   `yaml:"max_points" json:"max_points"`
	Allowed   []float64 `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Aliases   []string  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Optional  bool      `yaml:"optional,omitempty" json:"optional,omitempty"`
}

func (r ItemRule) Required() bool { return !r.Optional }

// GroupRule declares one group. Optional groups must be trailing.
type GroupRule struct {
	ID       string     `yaml:"id" json:"id"`
	Items    []ItemRule `yaml:"items" json:"items"`
	Optional bool       `yaml:"optional,omitempty" json:"optional,omitempty"`
}

func (g GroupRule) MaxPoints() float64 {
	var sum float64
	for _, it := range g.Items {
		sum += it.MaxPoints
	}
	return sum
}

// Item resolves an item by key or alias.
func (g GroupRule) Item(label string) (ItemRule, bool) {
	want := NormalizeLabel(label)
	for _, it := range g.Items {
		if NormalizeLabel(it.Key) == want {
			return it, true
		}
		for _, a := range it.Aliases {
			if NormalizeLabel(a) == want {
				return it, true
			}
		}
	}
	return ItemRule{}, false
}

// Rubric describes how one exercise kind is scored.
type Rubric struct {
	Kind            string       `yaml:"kind" json:"kind"`
	Type            ExerciseType `yaml:"type" json:"type"`
	Groups          []GroupRule  `yaml:"groups" json:"groups"`
	RescaleTarget   float64      `yaml:"rescale_target" json:"rescale_target"`
	ReducedMax      float64      `yaml:"reduced_max,omitempty" json:"reduced_max,omitempty"`
	IncludeOptional bool         `yaml:"include_optional,omitempty" json:"include_optional,omitempty"`
	KeepFractional  bool         `yaml:"keep_fractional,omitempty" json:"keep_fractional,omitempty"`
}

func (r Rubric) Group(id string) (GroupRule, bool) {
	for _, g := range r.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return GroupRule{}, false
}

// Rule returns the item rule for a canonical key.
func (r Rubric) Rule(k ItemKey) (ItemRule, bool) {
	g, ok := r.Group(k.GroupID)
	if !ok {
		return ItemRule{}, false
	}
	for _, it := range g.Items {
		if it.Key == k.Item {
			return it, true
		}
	}
	return ItemRule{}, false
}

// Counts reports whether a group takes part in the total and the max.
func (r Rubric) Counts(g GroupRule) bool { return !g.Optional || r.IncludeOptional }

// Validate checks the descriptor is complete and self-consistent.
func (r Rubric) Validate() error {
	if strings.TrimSpace(r.Kind) == "" {
		return fmt.Errorf("%w: rubric kind is empty", ErrInvalidArgument)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: rubric %q: unknown type %q", ErrInvalidArgument, r.Kind, r.Type)
	}
	if !(r.RescaleTarget > 0) || math.IsInf(r.RescaleTarget, 0) {
		return fmt.Errorf("%w: rubric %q: rescale_target must be positive", ErrInvalidArgument, r.Kind)
	}
	if len(r.Groups) == 0 {
		return fmt.Errorf("%w: rubric %q: no groups", ErrInvalidArgument, r.Kind)
	}
	var all float64
	seenGroup := map[string]bool{}
	sawOptional := false
	for _, g := range r.Groups {
		if g.ID == "" || strings.Contains(g.ID, "/") {
			return fmt.Errorf("%w: rubric %q: invalid group id %q", ErrInvalidArgument, r.Kind, g.ID)
		}
		if seenGroup[g.ID] {
			return fmt.Errorf("%w: rubric %q: duplicate group %q", ErrInvalidArgument, r.Kind, g.ID)
		}
		seenGroup[g.ID] = true
		if g.Optional {
			sawOptional = true
		} else if sawOptional {
			return fmt.Errorf("%w: rubric %q: optional group before required group %q", ErrInvalidArgument, r.Kind, g.ID)
		}
		if len(g.Items) == 0 {
			return fmt.Errorf("%w: rubric %q: group %q has no items", ErrInvalidArgument, r.Kind, g.ID)
		}
		labels := map[string]string{}
		for _, it := range g.Items {
			if it.Key == "" {
				return fmt.Errorf("%w: rubric %q: group %q has an empty item key", ErrInvalidArgument, r.Kind, g.ID)
			}
			if !(it.MaxPoints > 0) || math.IsInf(it.MaxPoints, 0) {
				return fmt.Errorf("%w: rubric %q: item %s/%s max_points must be positive", ErrInvalidArgument, r.Kind, g.ID, it.Key)
			}
			for _, v := range it.Allowed {
				if v < 0 || v > it.MaxPoints {
					return fmt.Errorf("%w: rubric %q: item %s/%s allowed value %v outside [0,%v]", ErrInvalidArgument, r.Kind, g.ID, it.Key, v, it.MaxPoints)
				}
			}
			for _, l := range append([]string{it.Key}, it.Aliases...) {
				n := NormalizeLabel(l)
				if n == "" {
					return fmt.Errorf("%w: rubric %q: item %s/%s has an empty alias", ErrInvalidArgument, r.Kind, g.ID, it.Key)
				}
				if owner, dup := labels[n]; dup && owner != it.Key {
					return fmt.Errorf("%w: rubric %q: alias %q maps to both %q and %q", ErrInvalidArgument, r.Kind, l, owner, it.Key)
				}
				labels[n] = it.Key
			}
		}
		all += g.MaxPoints()
	}
	if r.ReducedMax < 0 || r.ReducedMax > all {
		return fmt.Errorf("%w: rubric %q: reduced_max %v outside [0,%v]", ErrInvalidArgument, r.Kind, r.ReducedMax, all)
	}
	return nil
}

// CertificationEntry is one line of the certification catalogue.
type CertificationEntry struct {
	Kind      string  `yaml:"kind" json:"kind"`
	MaxPoints float64 `yaml:"max_points" json:"max_points"`
	FinalExam bool    `yaml:"final_exam,omitempty" json:"final_exam,omitempty"`
}

// Catalogue holds every rubric by exercise kind and the ordered certification catalogue.
type Catalogue struct {
	Rubrics       map[string]Rubric
	Certification []CertificationEntry
}

func (c Catalogue) Rubric(kind string) (Rubric, bool) {
	r, ok := c.Rubrics[kind]
	return r, ok
}

func (c Catalogue) Validate() error {
	if len(c.Rubrics) == 0 {
		return fmt.Errorf("%w: catalogue has no rubrics", ErrInvalidArgument)
	}
	for kind, r := range c.Rubrics {
		if kind != r.Kind {
			return fmt.Errorf("%w: catalogue key %q does not match rubric kind %q", ErrInvalidArgument, kind, r.Kind)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	finals := 0
	seen := map[string]bool{}
	for _, e := range c.Certification {
		if seen[e.Kind] {
			return fmt.Errorf("%w: certification kind %q listed twice", ErrInvalidArgument, e.Kind)
		}
		seen[e.Kind] = true
		if _, ok := c.Rubrics[e.Kind]; !ok {
			return fmt.Errorf("%w: certification kind %q has no rubric", ErrInvalidArgument, e.Kind)
		}
		if !(e.MaxPoints > 0) {
			return fmt.Errorf("%w: certification kind %q max_points must be positive", ErrInvalidArgument, e.Kind)
		}
		if e.FinalExam {
			finals++
		}
	}
	if finals != 1 {
		return fmt.Errorf("%w: certification catalogue needs exactly one final exam, got %d", ErrInvalidArgument, finals)
	}
	return nil
}

// NormalizeLabel canonicalizes a label for alias matching: NFC, case folded,
// separators collapsed to single spaces.
func NormalizeLabel(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
