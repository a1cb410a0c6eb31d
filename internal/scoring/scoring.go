// Package scoring turns evidence records into bounded skill levels.
//
// Each evidence item contributes base(source) x impact x decay(age) x hoarding.
// The level of a (person, skill) pair is the strongest contribution plus a
// small bonus for corroboration across distinct sources, clamped to
// [0, Ceiling]. Everything here is a pure function of its inputs and a clock
// value supplied by the caller.
package scoring

import (
	"math"
	"sort"
	"time"

	"smartchimera/internal/types"
)

// Scorer applies a fixed Config. Safe for concurrent use.
type Scorer struct {
	cfg     Config
	buckets []DecayBucket
}

// NewScorer copies cfg; later changes to the caller's value have no effect.
func NewScorer(cfg Config) *Scorer {
	buckets := append([]DecayBucket(nil), cfg.DecayBuckets...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MaxAgeDays < buckets[j].MaxAgeDays })
	src := make(map[string]float64, len(cfg.SourceBase))
	for k, v := range cfg.SourceBase {
		src[k] = v
	}
	cfg.SourceBase = src
	return &Scorer{cfg: cfg, buckets: buckets}
}

var defaultScorer = NewScorer(DefaultConfig())

// Default returns a Scorer with DefaultConfig.
func Default() *Scorer { return defaultScorer }

// Config returns a copy of the scorer's configuration.
func (s *Scorer) Config() Config { return s.cfg }

// ComputeSkillLevel scores evidence with the default configuration.
func ComputeSkillLevel(evidence []types.Evidence, now time.Time) float64 {
	return defaultScorer.Level(evidence, now)
}

// AgeDays is never negative; future timestamps count as age 0.
func AgeDays(ts, now time.Time) float64 {
	d := now.Sub(ts).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Decay is non-increasing in ageDays.
func (s *Scorer) Decay(ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	for _, b := range s.buckets {
		if ageDays < b.MaxAgeDays {
			return b.Factor
		}
	}
	return s.cfg.DecayFloor
}

// ImpactMultiplier maps the categorical impact to its multiplier.
func (s *Scorer) ImpactMultiplier(impact types.Impact) float64 {
	switch impact {
	case types.ImpactLow:
		return s.cfg.ImpactLow
	case types.ImpactHigh:
		return s.cfg.ImpactHigh
	default:
		return s.cfg.ImpactMedium
	}
}

// Base returns the base weight for a source tag.
func (s *Scorer) Base(source string) float64 {
	if b, ok := s.cfg.SourceBase[source]; ok {
		return b
	}
	return s.cfg.DefaultBase
}

// HoardingFactor is the multiplier for unvalidated items given how many
// validated items exist in the same evidence set.
func (s *Scorer) HoardingFactor(validatedCount int) float64 {
	switch {
	case validatedCount <= 0:
		return s.cfg.HoardingNoValidation
	case validatedCount <= s.cfg.HoardingFewMax:
		return s.cfg.HoardingFewValidations
	default:
		return 1.0
	}
}

// Contribution scores one item without the hoarding discount.
func (s *Scorer) Contribution(e types.Evidence, now time.Time) float64 {
	return s.Base(e.Source) * s.ImpactMultiplier(e.Impact) * s.Decay(AgeDays(e.Timestamp, now))
}

// Level computes the skill level of one (person, skill) evidence set.
// Empty evidence yields 0.
func (s *Scorer) Level(evidence []types.Evidence, now time.Time) float64 {
	if len(evidence) == 0 {
		return 0
	}

	validated := 0
	for _, e := range evidence {
		if e.Validated {
			validated++
		}
	}
	hoarding := s.HoardingFactor(validated)

	best := 0.0
	sources := make(map[string]struct{}, 2)
	for _, e := range evidence {
		c := s.Contribution(e, now)
		if !e.Validated {
			c *= hoarding
		}
		if c > best {
			best = c
		}
		sources[e.Source] = struct{}{}
	}

	bonus := s.cfg.CorroborationStep * float64(len(sources)-1)
	if bonus > s.cfg.CorroborationCap {
		bonus = s.cfg.CorroborationCap
	}
	return s.clamp(best + bonus)
}

func (s *Scorer) clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > s.cfg.Ceiling {
		return s.cfg.Ceiling
	}
	return v
}

// Levels groups a person's evidence by skill and scores each group.
func (s *Scorer) Levels(evidence []types.Evidence, now time.Time) map[string]float64 {
	bySkill := GroupBySkill(evidence)
	out := make(map[string]float64, len(bySkill))
	for skill, items := range bySkill {
		out[skill] = s.Level(items, now)
	}
	return out
}

// GroupBySkill preserves input order inside each group.
func GroupBySkill(evidence []types.Evidence) map[string][]types.Evidence {
	out := make(map[string][]types.Evidence)
	for _, e := range evidence {
		out[e.Skill] = append(out[e.Skill], e)
	}
	return out
}

// =============================================================================
// SUMMARY STATISTICS
// =============================================================================

// Stats summarizes one contributor's evidence for one skill.
type Stats struct {
	Level        float64   `json:"level"`
	Frequency    int       `json:"frequency"`
	RecencyDays  *int      `json:"recency_days"`
	Validated    bool      `json:"validated"`
	ValidatedBy  string    `json:"validated_by,omitempty"`
	Sources      []string  `json:"sources"`
	LastEvidence time.Time `json:"last_evidence,omitempty"`
}

// Summarize computes Stats for one (person, skill) evidence set.
func (s *Scorer) Summarize(evidence []types.Evidence, now time.Time) Stats {
	st := Stats{
		Level:     s.Level(evidence, now),
		Frequency: len(evidence),
		Sources:   []string{},
	}
	if len(evidence) == 0 {
		return st
	}

	var newestValidated time.Time
	seen := make(map[string]struct{})
	for _, e := range evidence {
		if e.Timestamp.After(st.LastEvidence) {
			st.LastEvidence = e.Timestamp
		}
		if e.Validated {
			st.Validated = true
			if e.ValidatedBy != "" && !e.Timestamp.Before(newestValidated) {
				newestValidated = e.Timestamp
				st.ValidatedBy = e.ValidatedBy
			}
		}
		if _, ok := seen[e.Source]; !ok {
			seen[e.Source] = struct{}{}
			st.Sources = append(st.Sources, e.Source)
		}
	}
	sort.Strings(st.Sources)

	days := int(AgeDays(st.LastEvidence, now))
	st.RecencyDays = &days
	return st
}

// FrequencyScore saturates logarithmically: 10 items score 1.
func FrequencyScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(1.0, math.Log1p(float64(n))/math.Log(11))
}

// RecencyScore is linear over a year. Unknown recency (nil) scores 0.2.
func RecencyScore(days *int) float64 {
	if days == nil {
		return 0.2
	}
	return math.Max(0, 1-float64(*days)/365)
}
