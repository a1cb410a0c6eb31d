// Package policy grades the evidence behind an assembled team against a
// declarative rule document and raises advisory alerts.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"smartchimera/internal/logging"
	"smartchimera/internal/types"
)

//go:embed rules.yaml
var embeddedRules []byte

// ErrNoDefaultRules is returned when the document has no default section and
// the requested mission has no entry either.
var ErrNoDefaultRules = errors.New("policy: no default rules and no mission rules for profile")

// Alert names.
const (
	AlertLowFrequency   = "low_frequency"
	AlertStaleEvidence  = "stale_evidence"
	AlertLowValidation  = "low_validation"
	AlertNoContributors = "no_contributors"
)

// =============================================================================
// RULE TYPES
// =============================================================================

// Weights scale each per-skill metric in the skill score.
type Weights struct {
	BaseSkill  float64 `json:"base_skill"`
	Level      float64 `json:"level"`
	Frequency  float64 `json:"frequency"`
	Recency    float64 `json:"recency"`
	Validation float64 `json:"validation"`
}

// Thresholds trigger alerts when a metric falls on the wrong side.
type Thresholds struct {
	MinFrequency      float64 `json:"min_frequency"`
	MaxRecencyDays    float64 `json:"max_recency_days"`
	MinValidatedRatio float64 `json:"min_validated_ratio"`
}

// RuleSet is a fully resolved set of weights and thresholds.
type RuleSet struct {
	Weights    Weights    `json:"weights"`
	Thresholds Thresholds `json:"thresholds"`
}

// BuiltinRules is the base layer under every document.
func BuiltinRules() RuleSet {
	return RuleSet{
		Weights: Weights{
			BaseSkill:  1.0,
			Level:      0.4,
			Frequency:  0.25,
			Recency:    -0.01,
			Validation: 0.5,
		},
		Thresholds: Thresholds{
			MinFrequency:      1.0,
			MaxRecencyDays:    120,
			MinValidatedRatio: 0.3,
		},
	}
}

// WeightsOverride holds optional weights; nil fields inherit.
type WeightsOverride struct {
	BaseSkill  *float64 `yaml:"base_skill" json:"base_skill,omitempty"`
	Level      *float64 `yaml:"level" json:"level,omitempty"`
	Frequency  *float64 `yaml:"frequency" json:"frequency,omitempty"`
	Recency    *float64 `yaml:"recency" json:"recency,omitempty"`
	Validation *float64 `yaml:"validation" json:"validation,omitempty"`
}

// ThresholdsOverride holds optional thresholds; nil fields inherit.
type ThresholdsOverride struct {
	MinFrequency      *float64 `yaml:"min_frequency" json:"min_frequency,omitempty"`
	MaxRecencyDays    *float64 `yaml:"max_recency_days" json:"max_recency_days,omitempty"`
	MinValidatedRatio *float64 `yaml:"min_validated_ratio" json:"min_validated_ratio,omitempty"`
}

// Override is one merge layer: a document section or a request override.
type Override struct {
	Weights    WeightsOverride    `yaml:"weights" json:"weights"`
	Thresholds ThresholdsOverride `yaml:"thresholds" json:"thresholds"`
}

// Apply returns base with every set field of o replacing its counterpart.
// Neither base nor o is modified.
func (o *Override) Apply(base RuleSet) RuleSet {
	if o == nil {
		return base
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	out := base
	set(&out.Weights.BaseSkill, o.Weights.BaseSkill)
	set(&out.Weights.Level, o.Weights.Level)
	set(&out.Weights.Frequency, o.Weights.Frequency)
	set(&out.Weights.Recency, o.Weights.Recency)
	set(&out.Weights.Validation, o.Weights.Validation)
	set(&out.Thresholds.MinFrequency, o.Thresholds.MinFrequency)
	set(&out.Thresholds.MaxRecencyDays, o.Thresholds.MaxRecencyDays)
	set(&out.Thresholds.MinValidatedRatio, o.Thresholds.MinValidatedRatio)
	return out
}

// Validate rejects thresholds no metric could sensibly be compared against.
func (r RuleSet) Validate() error {
	if r.Thresholds.MinFrequency < 0 {
		return &types.ValidationError{Field: "thresholds.min_frequency", Reason: "must be non-negative"}
	}
	if r.Thresholds.MaxRecencyDays < 0 {
		return &types.ValidationError{Field: "thresholds.max_recency_days", Reason: "must be non-negative"}
	}
	if r.Thresholds.MinValidatedRatio < 0 || r.Thresholds.MinValidatedRatio > 1 {
		return &types.ValidationError{Field: "thresholds.min_validated_ratio", Reason: "must be within [0, 1]"}
	}
	return nil
}

// Document is the on-disk rule layout.
type Document struct {
	Default  *Override           `yaml:"default"`
	Missions map[string]Override `yaml:"missions"`
}

// ParseDocument decodes a rules document. Mission keys are lower-cased.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy rules: %w", err)
	}
	missions := make(map[string]Override, len(doc.Missions))
	for id, o := range doc.Missions {
		missions[strings.ToLower(strings.TrimSpace(id))] = o
	}
	doc.Missions = missions
	return &doc, nil
}

var (
	embeddedOnce sync.Once
	embeddedDoc  *Document
	embeddedErr  error
)

// LoadDocument reads a rules document. An empty path returns the embedded one.
func LoadDocument(path string) (*Document, error) {
	if path == "" {
		embeddedOnce.Do(func() {
			embeddedDoc, embeddedErr = ParseDocument(embeddedRules)
		})
		return embeddedDoc, embeddedErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy rules: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	logging.Policy("loaded policy rules from %s (%d missions)", path, len(doc.Missions))
	return doc, nil
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine evaluates team evidence. The document is read-only after construction.
type Engine struct {
	doc     *Document
	resolve func(id string) (string, bool)
}

// NewEngine wraps a loaded document. A nil document uses the embedded rules.
func NewEngine(doc *Document) (*Engine, error) {
	if doc == nil {
		var err error
		if doc, err = LoadDocument(""); err != nil {
			return nil, err
		}
	}
	return &Engine{doc: doc}, nil
}

// SetProfileResolver canonicalizes profile ids (aliases, case) before the
// mission section lookup. Unresolved ids are used as given.
func (e *Engine) SetProfileResolver(fn func(id string) (string, bool)) {
	e.resolve = fn
}

// Rules merges built-in defaults, the document default, the mission section
// and the request override, in that order.
func (e *Engine) Rules(profileID string, override *Override) (RuleSet, error) {
	key := strings.ToLower(strings.TrimSpace(profileID))
	if e.resolve != nil && key != "" {
		if canonical, ok := e.resolve(key); ok {
			key = canonical
		}
	}

	mission, hasMission := e.doc.Missions[key]
	if e.doc.Default == nil && !hasMission {
		return RuleSet{}, fmt.Errorf("%w %q", ErrNoDefaultRules, profileID)
	}

	rules := e.doc.Default.Apply(BuiltinRules())
	if hasMission {
		rules = mission.Apply(rules)
	}
	rules = override.Apply(rules)
	if err := rules.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rules, nil
}

// SkillMetrics are the per-skill inputs to the score.
type SkillMetrics struct {
	AvgLevel       float64 `json:"avg_level"`
	AvgFrequency   float64 `json:"avg_frequency"`
	MinRecencyDays *int    `json:"min_recency_days"`
	ValidatedRatio float64 `json:"validated_ratio"`
}

// SkillResult is the evaluation of one skill.
type SkillResult struct {
	Skill        string       `json:"skill"`
	Score        float64      `json:"score"`
	Contributors int          `json:"contributors"`
	Alerts       []string     `json:"alerts"`
	Metrics      SkillMetrics `json:"metrics"`
}

// Alert groups the issues raised for one skill.
type Alert struct {
	Skill  string   `json:"skill"`
	Issues []string `json:"issues"`
}

// Evaluation is the policy verdict on a team. Numbers are rounded to four places.
type Evaluation struct {
	MissionProfile string        `json:"mission_profile"`
	OverallScore   float64       `json:"overall_score"`
	Rules          RuleSet       `json:"rules"`
	Skills         []SkillResult `json:"skills"`
	Alerts         []Alert       `json:"alerts"`
}

// Evaluate grades team. An empty profileID uses team.MissionProfile.
func (e *Engine) Evaluate(team *TeamEvidence, profileID string, override *Override) (*Evaluation, error) {
	timer := logging.StartTimer(logging.CategoryPolicy, "Evaluate")
	defer timer.Stop()

	if team == nil {
		team = &TeamEvidence{}
	}
	if profileID == "" {
		profileID = team.MissionProfile
	}
	rules, err := e.Rules(profileID, override)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		MissionProfile: profileID,
		Rules:          rules,
		Skills:         make([]SkillResult, 0, len(team.Skills)),
		Alerts:         []Alert{},
	}

	var total float64
	for _, skill := range team.Skills {
		res, raw := evaluateSkill(skill, rules)
		total += raw
		if len(res.Alerts) > 0 {
			eval.Alerts = append(eval.Alerts, Alert{Skill: res.Skill, Issues: res.Alerts})
		}
		eval.Skills = append(eval.Skills, res)
	}
	if len(team.Skills) > 0 {
		eval.OverallScore = round4(total / float64(len(team.Skills)))
	}

	logging.PolicyDebug("evaluated %d skills for profile %q: overall=%.4f alerts=%d",
		len(eval.Skills), profileID, eval.OverallScore, len(eval.Alerts))
	logging.Audit().PolicyEvaluated(profileID, eval.OverallScore, len(eval.Alerts))
	return eval, nil
}

// evaluateSkill returns the rounded result and the unrounded score.
func evaluateSkill(skill SkillEvidence, rules RuleSet) (SkillResult, float64) {
	n := len(skill.Contributors)
	if n == 0 {
		return SkillResult{Skill: skill.Skill, Alerts: []string{AlertNoContributors}}, 0
	}

	var levelSum, freqSum float64
	var validated int
	var minRecency *int
	for _, c := range skill.Contributors {
		levelSum += c.Level
		freqSum += float64(c.Frequency)
		if c.Validated || c.ValidatedBy != "" {
			validated++
		}
		if c.RecencyDays != nil && (minRecency == nil || *c.RecencyDays < *minRecency) {
			d := *c.RecencyDays
			minRecency = &d
		}
	}
	avgLevel := levelSum / float64(n)
	avgFreq := freqSum / float64(n)
	ratio := float64(validated) / float64(n)

	w := rules.Weights
	score := w.BaseSkill + w.Level*avgLevel + w.Frequency*avgFreq + w.Validation*ratio
	if minRecency != nil {
		score += w.Recency * float64(*minRecency)
	}

	alerts := []string{}
	th := rules.Thresholds
	if avgFreq < th.MinFrequency {
		alerts = append(alerts, AlertLowFrequency)
	}
	if minRecency == nil || float64(*minRecency) > th.MaxRecencyDays {
		alerts = append(alerts, AlertStaleEvidence)
	}
	if ratio < th.MinValidatedRatio {
		alerts = append(alerts, AlertLowValidation)
	}

	return SkillResult{
		Skill:        skill.Skill,
		Score:        round4(score),
		Contributors: n,
		Alerts:       alerts,
		Metrics: SkillMetrics{
			AvgLevel:       round4(avgLevel),
			AvgFrequency:   round4(avgFreq),
			MinRecencyDays: minRecency,
			ValidatedRatio: round4(ratio),
		},
	}, score
}

// MissionIDs lists the profiles that carry a mission section, sorted.
func (e *Engine) MissionIDs() []string {
	ids := make([]string, 0, len(e.doc.Missions))
	for id := range e.doc.Missions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
