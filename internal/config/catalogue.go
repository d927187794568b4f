package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// catalogueYAML is the on-disk layout of the rubric catalogue.
type catalogueYAML struct {
	Rubrics       []rubricYAML                `yaml:"rubrics"`
	Certification []domain.CertificationEntry `yaml:"certification"`
}

// rubricYAML is a rubric plus an optional group template: group_count groups
// numbered from 1, each with group_items, the last optional_groups of them optional.
type rubricYAML struct {
	domain.Rubric  `yaml:",inline"`
	GroupCount     int               `yaml:"group_count,omitempty"`
	OptionalGroups int               `yaml:"optional_groups,omitempty"`
	GroupItems     []domain.ItemRule `yaml:"group_items,omitempty"`
}

// LoadCatalogue reads the rubric catalogue from path, or the embedded default
// when path is empty, and validates it.
func LoadCatalogue(path string) (domain.Catalogue, error) {
	content := defaultCatalogue
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Catalogue{}, fmt.Errorf("op=config.LoadCatalogue: %w", err)
		}
		// #nosec G304 -- operator supplied configuration file
		content, err = os.ReadFile(abs)
		if err != nil {
			return domain.Catalogue{}, fmt.Errorf("op=config.LoadCatalogue: %w", err)
		}
	}
	cat, err := ParseCatalogue(content)
	if err != nil {
		return domain.Catalogue{}, fmt.Errorf("op=config.LoadCatalogue: %w", err)
	}
	return cat, nil
}

// ParseCatalogue decodes and validates a YAML catalogue. Unknown keys are rejected.
func ParseCatalogue(content []byte) (domain.Catalogue, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var raw catalogueYAML
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Catalogue{}, fmt.Errorf("%w: empty catalogue", domain.ErrInvalidArgument)
		}
		return domain.Catalogue{}, fmt.Errorf("%w: parse catalogue: %v", domain.ErrInvalidArgument, err)
	}

	cat := domain.Catalogue{
		Rubrics:       make(map[string]domain.Rubric, len(raw.Rubrics)),
		Certification: raw.Certification,
	}
	for _, ry := range raw.Rubrics {
		r, err := ry.expand()
		if err != nil {
			return domain.Catalogue{}, err
		}
		if _, dup := cat.Rubrics[r.Kind]; dup {
			return domain.Catalogue{}, fmt.Errorf("%w: rubric %q declared twice", domain.ErrInvalidArgument, r.Kind)
		}
		cat.Rubrics[r.Kind] = r
	}
	if err := cat.Validate(); err != nil {
		return domain.Catalogue{}, err
	}
	return cat, nil
}

func (ry rubricYAML) expand() (domain.Rubric, error) {
	r := ry.Rubric
	if ry.GroupCount == 0 {
		if ry.OptionalGroups != 0 || len(ry.GroupItems) != 0 {
			return r, fmt.Errorf("%w: rubric %q: group template without group_count", domain.ErrInvalidArgument, r.Kind)
		}
		return r, nil
	}
	if len(r.Groups) != 0 {
		return r, fmt.Errorf("%w: rubric %q: both groups and group_count set", domain.ErrInvalidArgument, r.Kind)
	}
	if ry.GroupCount < 0 || ry.OptionalGroups < 0 || ry.OptionalGroups > ry.GroupCount {
		return r, fmt.Errorf("%w: rubric %q: bad group template %d/%d", domain.ErrInvalidArgument, r.Kind, ry.GroupCount, ry.OptionalGroups)
	}
	r.Groups = make([]domain.GroupRule, 0, ry.GroupCount)
	for i := 1; i <= ry.GroupCount; i++ {
		items := make([]domain.ItemRule, len(ry.GroupItems))
		copy(items, ry.GroupItems)
		r.Groups = append(r.Groups, domain.GroupRule{
			ID:       strconv.Itoa(i),
			Items:    items,
			Optional: i > ry.GroupCount-ry.OptionalGroups,
		})
	}
	return r, nil
}
