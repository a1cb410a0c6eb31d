package guardian

import "fmt"

// Config holds the tunable constants of team formation. None of them are
// structural: changing a value changes rankings, never the invariants.
type Config struct {
	// BeamWidth is the number of partial teams kept after each step.
	BeamWidth int `yaml:"beam_width" json:"beam_width"`
	// MaxExpansions caps the total number of partial teams generated per strategy.
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`

	// AvailabilityNorm is the weekly hours that count as full availability.
	AvailabilityNorm float64 `yaml:"availability_norm" json:"availability_norm"`
	// PenaltyScale multiplies centrality before the linchpin penalty applies.
	PenaltyScale float64 `yaml:"penalty_scale" json:"penalty_scale"`
	// ResilientPenaltyFloor is the minimum linchpin penalty in resilient mode.
	ResilientPenaltyFloor float64 `yaml:"resilient_penalty_floor" json:"resilient_penalty_floor"`
	// CollabFactor weighs the number of distinct partners inside the pool.
	CollabFactor float64 `yaml:"collab_factor" json:"collab_factor"`
	// ForcedAvailabilityHours is assumed for force-included people without a record.
	ForcedAvailabilityHours float64 `yaml:"forced_availability_hours" json:"forced_availability_hours"`

	CoverageBonus float64 `yaml:"coverage_bonus" json:"coverage_bonus"`
	SpreadWeight  float64 `yaml:"spread_weight" json:"spread_weight"`
	MentorBonus   float64 `yaml:"mentor_bonus" json:"mentor_bonus"`
	PairWeight    float64 `yaml:"pair_weight" json:"pair_weight"`

	// SeniorLevel and JuniorLevel split members for mentorship checks.
	SeniorLevel float64 `yaml:"senior_level" json:"senior_level"`
	JuniorLevel float64 `yaml:"junior_level" json:"junior_level"`

	// Advisory thresholds used by dossier checks.
	AdvisoryMinHours  float64 `yaml:"advisory_min_hours" json:"advisory_min_hours"`
	CompetenceTarget  float64 `yaml:"competence_target" json:"competence_target"`
	CompetenceFloor   float64 `yaml:"competence_floor" json:"competence_floor"`
	MaxRequiredSkills int     `yaml:"max_required_skills" json:"max_required_skills"`
	AvailabilityLimit int     `yaml:"availability_concurrency" json:"availability_concurrency"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		BeamWidth:               10,
		MaxExpansions:           200000,
		AvailabilityNorm:        40,
		PenaltyScale:            10,
		ResilientPenaltyFloor:   0.8,
		CollabFactor:            0.5,
		ForcedAvailabilityHours: 40,
		CoverageBonus:           2.0,
		SpreadWeight:            1.5,
		MentorBonus:             2.0,
		PairWeight:              1.0,
		SeniorLevel:             4.0,
		JuniorLevel:             2.5,
		AdvisoryMinHours:        15,
		CompetenceTarget:        3.0,
		CompetenceFloor:         1.0,
		MaxRequiredSkills:       64,
		AvailabilityLimit:       8,
	}
}

// Validate rejects settings that would break search bounds.
func (c Config) Validate() error {
	if c.BeamWidth < 1 {
		return fmt.Errorf("formation.beam_width must be at least 1")
	}
	if c.MaxExpansions < 1 {
		return fmt.Errorf("formation.max_expansions must be at least 1")
	}
	if c.AvailabilityNorm <= 0 {
		return fmt.Errorf("formation.availability_norm must be positive")
	}
	if c.PenaltyScale < 0 || c.ResilientPenaltyFloor < 0 {
		return fmt.Errorf("formation penalty settings must be non-negative")
	}
	if c.ForcedAvailabilityHours < 0 || c.AdvisoryMinHours < 0 {
		return fmt.Errorf("formation hour settings must be non-negative")
	}
	if c.JuniorLevel > c.SeniorLevel {
		return fmt.Errorf("formation.junior_level (%.2f) exceeds senior_level (%.2f)", c.JuniorLevel, c.SeniorLevel)
	}
	if c.MaxRequiredSkills < 1 || c.MaxRequiredSkills > 64 {
		return fmt.Errorf("formation.max_required_skills must be within [1, 64]")
	}
	if c.AvailabilityLimit < 1 {
		return fmt.Errorf("formation.availability_concurrency must be at least 1")
	}
	return nil
}
