// Package linchpin finds people whose absence would hurt collaboration
// connectivity or unique-skill coverage, and classifies their bus-factor risk.
package linchpin

import (
	"fmt"
	"sort"
	"strings"

	"smartchimera/internal/types"
)

// Config holds the classification thresholds and approximation knobs.
type Config struct {
	HighThreshold     float64 `yaml:"high_threshold" json:"high_threshold"`
	ModerateThreshold float64 `yaml:"moderate_threshold" json:"moderate_threshold"`
	// CompetenceFloor is the minimum level that counts as holding a skill.
	CompetenceFloor float64 `yaml:"competence_floor" json:"competence_floor"`
	// ApproxNodeThreshold switches to pivot sampling above this node count. 0 disables.
	ApproxNodeThreshold int   `yaml:"approx_node_threshold" json:"approx_node_threshold"`
	SamplePivots        int   `yaml:"sample_pivots" json:"sample_pivots"`
	Seed                int64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		HighThreshold:       0.5,
		ModerateThreshold:   0.25,
		CompetenceFloor:     1.0,
		ApproxNodeThreshold: 1000,
		SamplePivots:        100,
		Seed:                42,
	}
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	if c.ModerateThreshold < 0 || c.HighThreshold < c.ModerateThreshold {
		return fmt.Errorf("linchpin: need 0 <= moderate_threshold <= high_threshold")
	}
	if c.ApproxNodeThreshold < 0 || c.SamplePivots < 0 {
		return fmt.Errorf("linchpin: approximation settings must be non-negative")
	}
	if c.ApproxNodeThreshold > 0 && c.SamplePivots == 0 {
		return fmt.Errorf("linchpin: sample_pivots required when approximation is enabled")
	}
	return nil
}

// Holdings maps person -> skill -> level.
type Holdings map[string]map[string]float64

// Category is the machine-readable recommendation family for a risk level.
type Category string

const (
	CategoryUrgentCrossTraining Category = "urgent_cross_training"
	CategoryPairProgramming     Category = "pair_programming"
	CategoryKnowledgeSharing    Category = "knowledge_sharing"
	CategoryMaintain            Category = "maintain"
)

// Report is the linchpin assessment of one person.
type Report struct {
	PersonID        string          `json:"person_id"`
	Name            string          `json:"name"`
	Centrality      float64         `json:"centrality"`
	Skills          []string        `json:"skills"`
	UniqueSkills    []string        `json:"unique_skills"`
	Risk            types.RiskLevel `json:"risk_level"`
	Category        Category        `json:"category"`
	Recommendations []string        `json:"recommendations"`
}

// Classify combines centrality and unique-skill count into a risk level.
// For a fixed unique count the result never decreases as centrality grows.
func Classify(centrality float64, uniqueSkills int, cfg Config) types.RiskLevel {
	high := centrality > cfg.HighThreshold
	switch {
	case high && uniqueSkills >= 1:
		return types.RiskCritical
	case high || uniqueSkills >= 2:
		return types.RiskHigh
	case centrality > cfg.ModerateThreshold || uniqueSkills >= 1:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// CategoryFor maps a risk level to its recommendation family.
func CategoryFor(r types.RiskLevel) Category {
	switch r {
	case types.RiskCritical:
		return CategoryUrgentCrossTraining
	case types.RiskHigh:
		return CategoryPairProgramming
	case types.RiskMedium:
		return CategoryKnowledgeSharing
	default:
		return CategoryMaintain
	}
}

// Recommendations returns the actionable steps for a risk level, naming
// the person's leading skills where relevant.
func Recommendations(r types.RiskLevel, skills []string) []string {
	switch r {
	case types.RiskCritical:
		return []string{
			"URGENT: start cross-training immediately",
			"Document all critical knowledge",
			"Assign a shadow/backup for every responsibility",
			fmt.Sprintf("Train 2+ people in: %s", strings.Join(head(skills, 3), ", ")),
		}
	case types.RiskHigh:
		return []string{
			"Introduce regular pair programming",
			"Write detailed technical documentation",
			fmt.Sprintf("Identify cross-training candidates for: %s", strings.Join(head(skills, 2), ", ")),
		}
	case types.RiskMedium:
		return []string{
			"Run knowledge sharing sessions",
			"Include as reviewer in code reviews",
		}
	default:
		return []string{"Low risk: keep current practices"}
	}
}

func head(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// UniqueSkills returns, per person, the skills nobody else holds at or above floor.
func UniqueSkills(holdings Holdings, floor float64) map[string][]string {
	holders := make(map[string][]string)
	for person, skills := range holdings {
		for skill, lvl := range skills {
			if lvl >= floor {
				holders[skill] = append(holders[skill], person)
			}
		}
	}
	out := make(map[string][]string)
	for skill, ps := range holders {
		if len(ps) == 1 {
			out[ps[0]] = append(out[ps[0]], skill)
		}
	}
	for p := range out {
		sort.Strings(out[p])
	}
	return out
}

// heldSkills lists skills at or above floor, strongest first.
func heldSkills(levels map[string]float64, floor float64) []string {
	out := make([]string, 0, len(levels))
	for skill, lvl := range levels {
		if lvl >= floor {
			out = append(out, skill)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if levels[out[i]] != levels[out[j]] {
			return levels[out[i]] > levels[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Detect computes centrality over snap and classifies every person.
// Disconnected or empty graphs are not errors: isolated nodes score 0.
func Detect(snap Snapshot, holdings Holdings, cfg Config) []Report {
	scores, _ := Betweenness(snap, cfg)
	return Assess(scores, snap.Names, holdings, cfg)
}

// Assess classifies precomputed centrality scores. Persons present only in
// holdings get centrality 0.
func Assess(scores map[string]float64, names map[string]string, holdings Holdings, cfg Config) []Report {
	unique := UniqueSkills(holdings, cfg.CompetenceFloor)

	ids := make(map[string]struct{}, len(scores)+len(holdings))
	for id := range scores {
		ids[id] = struct{}{}
	}
	for id := range holdings {
		ids[id] = struct{}{}
	}

	reports := make([]Report, 0, len(ids))
	for id := range ids {
		c := scores[id]
		u := unique[id]
		if u == nil {
			u = []string{}
		}
		skills := heldSkills(holdings[id], cfg.CompetenceFloor)
		risk := Classify(c, len(u), cfg)
		name := names[id]
		if name == "" {
			name = id
		}
		reports = append(reports, Report{
			PersonID:        id,
			Name:            name,
			Centrality:      c,
			Skills:          skills,
			UniqueSkills:    u,
			Risk:            risk,
			Category:        CategoryFor(risk),
			Recommendations: Recommendations(risk, skills),
		})
	}
	SortReports(reports)
	return reports
}

// SortReports orders by risk, then centrality, both descending, then id.
func SortReports(reports []Report) {
	sort.Slice(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.Risk != b.Risk {
			return a.Risk > b.Risk
		}
		if a.Centrality != b.Centrality {
			return a.Centrality > b.Centrality
		}
		return a.PersonID < b.PersonID
	})
}

// Filter keeps reports at or above minRisk.
func Filter(reports []Report, minRisk types.RiskLevel) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if r.Risk >= minRisk {
			out = append(out, r)
		}
	}
	return out
}
