// Package mission holds the static registry of mission profiles. The
// registry is loaded once at startup and never changes afterwards.
package mission

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"smartchimera/internal/logging"
	"smartchimera/internal/types"
)

//go:embed profiles.yaml
var embeddedProfiles []byte

// Formation modes.
const (
	ModePerformance = "performance"
	ModeResilient   = "resilient"
)

// Weights bias candidate scoring.
type Weights struct {
	Skill           float64 `yaml:"skill" json:"skill"`
	Availability    float64 `yaml:"availability" json:"availability"`
	Collaboration   float64 `yaml:"collaboration" json:"collaboration"`
	LinchpinPenalty float64 `yaml:"linchpin_penalty" json:"linchpin_penalty"`
}

// Profile is one named weighting.
type Profile struct {
	ID                 string         `yaml:"-" json:"id"`
	Name               string         `yaml:"name" json:"name"`
	Description        string         `yaml:"description" json:"description"`
	StrategyPreference types.Strategy `yaml:"strategy_preference" json:"strategy_preference"`
	Mode               string         `yaml:"mode" json:"mode"`
	Weights            Weights        `yaml:"weights" json:"weights"`
}

type document struct {
	Default  string             `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
	Aliases  map[string]string  `yaml:"aliases"`
}

// Registry maps profile ids to profiles. Safe for concurrent reads.
type Registry struct {
	profiles  map[string]Profile
	aliases   map[string]string
	defaultID string
}

// Parse builds a registry from a YAML document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mission profiles: %w", err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("mission profiles: no profiles defined")
	}
	if doc.Default == "" {
		return nil, fmt.Errorf("mission profiles: no default profile")
	}

	r := &Registry{
		profiles:  make(map[string]Profile, len(doc.Profiles)),
		aliases:   make(map[string]string, len(doc.Aliases)),
		defaultID: strings.ToLower(doc.Default),
	}
	for rawID, p := range doc.Profiles {
		id := strings.ToLower(rawID)
		p.ID = id
		if p.Name == "" {
			p.Name = id
		}
		if !p.StrategyPreference.Valid() {
			return nil, fmt.Errorf("mission profile %s: unknown strategy_preference %q", id, p.StrategyPreference)
		}
		switch p.Mode {
		case "":
			p.Mode = ModePerformance
		case ModePerformance, ModeResilient:
		default:
			return nil, fmt.Errorf("mission profile %s: unknown mode %q", id, p.Mode)
		}
		if p.Weights.Skill < 0 || p.Weights.Availability < 0 || p.Weights.Collaboration < 0 {
			return nil, fmt.Errorf("mission profile %s: skill, availability and collaboration weights must be non-negative", id)
		}
		r.profiles[id] = p
	}
	if _, ok := r.profiles[r.defaultID]; !ok {
		return nil, fmt.Errorf("mission profiles: default %q is not defined", doc.Default)
	}
	for alias, target := range doc.Aliases {
		if _, ok := r.profiles[strings.ToLower(target)]; !ok {
			return nil, fmt.Errorf("mission profiles: alias %s points to unknown profile %s", alias, target)
		}
		r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
	}
	return r, nil
}

// LoadFile reads a registry from path. An empty path returns the embedded registry.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Embedded()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission profiles: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logging.Mission("loaded %d mission profiles from %s", len(r.profiles), path)
	return r, nil
}

var (
	embeddedOnce sync.Once
	embeddedReg  *Registry
	embeddedErr  error
)

// Embedded returns the built-in registry.
func Embedded() (*Registry, error) {
	embeddedOnce.Do(func() {
		embeddedReg, embeddedErr = Parse(embeddedProfiles)
		if embeddedErr == nil {
			logging.Mission("loaded %d embedded mission profiles", len(embeddedReg.profiles))
		}
	})
	return embeddedReg, embeddedErr
}

// Get never fails: unknown ids resolve to the default profile.
func (r *Registry) Get(id string) Profile {
	p, ok := r.Lookup(id)
	if !ok {
		logging.MissionDebug("unknown mission profile %q, using default %q", id, r.defaultID)
		return r.profiles[r.defaultID]
	}
	return p
}

// Lookup resolves id (case-insensitive, aliases honoured) without falling back.
func (r *Registry) Lookup(id string) (Profile, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	p, ok := r.profiles[key]
	return p, ok
}

// Has reports whether id names a profile or alias.
func (r *Registry) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Default returns the designated default profile.
func (r *Registry) Default() Profile {
	return r.profiles[r.defaultID]
}

// List returns every profile sorted by id.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
