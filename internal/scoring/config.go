package scoring

import (
	"fmt"
	"sort"
)

// DecayBucket applies Factor to evidence younger than MaxAgeDays.
type DecayBucket struct {
	MaxAgeDays float64 `yaml:"max_age_days" json:"max_age_days"`
	Factor     float64 `yaml:"factor" json:"factor"`
}

// Config holds every tunable constant of the scoring engine.
type Config struct {
	// Ceiling bounds every level: [0, Ceiling].
	Ceiling float64 `yaml:"ceiling" json:"ceiling"`

	// DefaultBase is used for sources missing from SourceBase.
	DefaultBase float64            `yaml:"default_base" json:"default_base"`
	SourceBase  map[string]float64 `yaml:"source_base" json:"source_base"`

	ImpactLow    float64 `yaml:"impact_low" json:"impact_low"`
	ImpactMedium float64 `yaml:"impact_medium" json:"impact_medium"`
	ImpactHigh   float64 `yaml:"impact_high" json:"impact_high"`

	// DecayBuckets are sorted by MaxAgeDays; evidence older than the last
	// bucket gets DecayFloor.
	DecayBuckets []DecayBucket `yaml:"decay_buckets" json:"decay_buckets"`
	DecayFloor   float64       `yaml:"decay_floor" json:"decay_floor"`

	// Hoarding tiers discount unvalidated evidence by how many peer-validated
	// items exist in the same set.
	HoardingNoValidation   float64 `yaml:"hoarding_no_validation" json:"hoarding_no_validation"`
	HoardingFewValidations float64 `yaml:"hoarding_few_validations" json:"hoarding_few_validations"`
	HoardingFewMax         int     `yaml:"hoarding_few_max" json:"hoarding_few_max"`

	// Each distinct source beyond the first adds CorroborationStep, up to CorroborationCap.
	CorroborationStep float64 `yaml:"corroboration_step" json:"corroboration_step"`
	CorroborationCap  float64 `yaml:"corroboration_cap" json:"corroboration_cap"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Ceiling:     5.0,
		DefaultBase: 3.0,
		SourceBase: map[string]float64{
			"github":      3.0,
			"jira":        2.5,
			"spreadsheet": 2.0,
			"manual":      1.5,
		},
		ImpactLow:    0.5,
		ImpactMedium: 1.0,
		ImpactHigh:   1.5,
		DecayBuckets: []DecayBucket{
			{MaxAgeDays: 90, Factor: 1.0},
			{MaxAgeDays: 180, Factor: 0.9},
			{MaxAgeDays: 365, Factor: 0.7},
		},
		DecayFloor:             0.5,
		HoardingNoValidation:   0.8,
		HoardingFewValidations: 0.9,
		HoardingFewMax:         3,
		CorroborationStep:      0.1,
		CorroborationCap:       0.5,
	}
}

// Validate enforces the ordering properties the engine relies on: impact
// multipliers are monotone and decay never increases with age.
func (c Config) Validate() error {
	if c.Ceiling <= 0 {
		return fmt.Errorf("scoring: ceiling must be positive")
	}
	if c.DefaultBase < 0 {
		return fmt.Errorf("scoring: default_base must be non-negative")
	}
	for src, b := range c.SourceBase {
		if b < 0 {
			return fmt.Errorf("scoring: source_base[%s] must be non-negative", src)
		}
	}
	if !(c.ImpactLow >= 0 && c.ImpactLow <= c.ImpactMedium && c.ImpactMedium <= c.ImpactHigh) {
		return fmt.Errorf("scoring: impact multipliers must satisfy 0 <= low <= medium <= high")
	}
	buckets := append([]DecayBucket(nil), c.DecayBuckets...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MaxAgeDays < buckets[j].MaxAgeDays })
	prev := 1.0
	for _, b := range buckets {
		if b.Factor < 0 || b.Factor > prev {
			return fmt.Errorf("scoring: decay factors must be non-increasing with age (bucket %.0fd)", b.MaxAgeDays)
		}
		prev = b.Factor
	}
	if c.DecayFloor < 0 || c.DecayFloor > prev {
		return fmt.Errorf("scoring: decay_floor must not exceed the oldest bucket factor")
	}
	for name, f := range map[string]float64{
		"hoarding_no_validation":   c.HoardingNoValidation,
		"hoarding_few_validations": c.HoardingFewValidations,
	} {
		if f < 0 || f > 1 {
			return fmt.Errorf("scoring: %s must be in [0,1]", name)
		}
	}
	if c.HoardingNoValidation > c.HoardingFewValidations {
		return fmt.Errorf("scoring: hoarding tiers must not reward fewer validations")
	}
	if c.CorroborationStep < 0 || c.CorroborationCap < 0 {
		return fmt.Errorf("scoring: corroboration settings must be non-negative")
	}
	return nil
}
