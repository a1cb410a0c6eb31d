package store

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"smartchimera/internal/types"
)

// Dataset is the YAML/JSON interchange format used by `chimera seed` and by
// the in-memory graph. It is a snapshot of what ingestion would have written.
type Dataset struct {
	Persons        []PersonRecord        `yaml:"persons" json:"persons"`
	Skills         []SkillRecord         `yaml:"skills" json:"skills"`
	Evidence       []EvidenceRecord      `yaml:"evidence" json:"evidence"`
	Collaborations []CollaborationRecord `yaml:"collaborations" json:"collaborations"`
	Constraints    []ConstraintRecord    `yaml:"constraints" json:"constraints"`
}

// PersonRecord carries availability keyed by ISO week ("2025-W14").
// DefaultHours applies to weeks without an explicit entry.
type PersonRecord struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Role         string             `yaml:"role,omitempty" json:"role,omitempty"`
	Availability map[string]float64 `yaml:"availability,omitempty" json:"availability,omitempty"`
	DefaultHours *float64           `yaml:"default_hours,omitempty" json:"default_hours,omitempty"`
}

type SkillRecord struct {
	Name   string `yaml:"name" json:"name"`
	Family string `yaml:"family,omitempty" json:"family,omitempty"`
}

type EvidenceRecord struct {
	ID          string    `yaml:"id,omitempty" json:"id,omitempty"`
	Person      string    `yaml:"person" json:"person"`
	Skill       string    `yaml:"skill" json:"skill"`
	Source      string    `yaml:"source" json:"source"`
	Timestamp   time.Time `yaml:"timestamp" json:"timestamp"`
	Impact      string    `yaml:"impact" json:"impact"`
	Validated   bool      `yaml:"validated,omitempty" json:"validated,omitempty"`
	ValidatedBy string    `yaml:"validated_by,omitempty" json:"validated_by,omitempty"`
	URL         string    `yaml:"url,omitempty" json:"url,omitempty"`
}

type CollaborationRecord struct {
	A        string    `yaml:"a" json:"a"`
	B        string    `yaml:"b" json:"b"`
	Weight   float64   `yaml:"weight" json:"weight"`
	LastSeen time.Time `yaml:"last_seen,omitempty" json:"last_seen,omitempty"`
}

type ConstraintRecord struct {
	A      string `yaml:"a" json:"a"`
	B      string `yaml:"b" json:"b"`
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// LoadDataset reads a YAML (or JSON, which is valid YAML) dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes and validates a dataset document.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks referential integrity: every edge, constraint and
// evidence item must reference a declared person.
func (d *Dataset) Validate() error {
	known := make(map[string]bool, len(d.Persons))
	for _, p := range d.Persons {
		if p.ID == "" {
			return fmt.Errorf("dataset: person with empty id")
		}
		if known[p.ID] {
			return fmt.Errorf("dataset: duplicate person %q", p.ID)
		}
		known[p.ID] = true
	}
	for i, e := range d.Evidence {
		if !known[e.Person] {
			return fmt.Errorf("dataset: evidence[%d] references unknown person %q", i, e.Person)
		}
		if e.Skill == "" {
			return fmt.Errorf("dataset: evidence[%d] has no skill", i)
		}
	}
	for i, c := range d.Collaborations {
		if !known[c.A] || !known[c.B] {
			return fmt.Errorf("dataset: collaboration[%d] references unknown person", i)
		}
		if c.A == c.B {
			return fmt.Errorf("dataset: collaboration[%d] is a self loop", i)
		}
	}
	for i, c := range d.Constraints {
		if !known[c.A] || !known[c.B] {
			return fmt.Errorf("dataset: constraint[%d] references unknown person", i)
		}
	}
	return nil
}

// SkillCatalogue merges declared skills with those only seen in evidence.
func (d *Dataset) SkillCatalogue() []types.Skill {
	seen := make(map[string]types.Skill)
	for _, s := range d.Skills {
		seen[s.Name] = types.Skill{Name: s.Name, Family: s.Family}
	}
	for _, e := range d.Evidence {
		if _, ok := seen[e.Skill]; !ok {
			seen[e.Skill] = types.Skill{Name: e.Skill}
		}
	}
	out := make([]types.Skill, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r EvidenceRecord) toEvidence() types.Evidence {
	return types.Evidence{
		ID:          r.ID,
		PersonID:    r.Person,
		Skill:       r.Skill,
		Source:      r.Source,
		Timestamp:   r.Timestamp,
		Impact:      types.ParseImpact(r.Impact),
		Validated:   r.Validated,
		ValidatedBy: r.ValidatedBy,
		URL:         r.URL,
	}
}
