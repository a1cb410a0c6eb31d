// Package types holds the SmartChimera domain model shared by the scoring,
// linchpin, policy and guardian packages, together with the Evidence Graph
// collaborator interface and the error taxonomy.
package types

import (
	"strings"
	"time"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Person is read-only to the core; ingestion owns it.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Skill is immutable reference data.
type Skill struct {
	Name   string `json:"name"`
	Family string `json:"family,omitempty"`
}

// Impact classifies how significant the artifact behind an evidence item is.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// ParseImpact maps free text to an Impact. Unknown values read as medium.
func ParseImpact(s string) Impact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow
	case "high":
		return ImpactHigh
	default:
		return ImpactMedium
	}
}

// Evidence ties a Person to a Skill. Append-only.
type Evidence struct {
	ID          string    `json:"id,omitempty"`
	PersonID    string    `json:"person_id"`
	Skill       string    `json:"skill"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	Impact      Impact    `json:"impact"`
	Validated   bool      `json:"validated"`
	ValidatedBy string    `json:"validated_by,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// CollaborationEdge is undirected; A and B carry no order.
type CollaborationEdge struct {
	A        string    `json:"a"`
	B        string    `json:"b"`
	Weight   float64   `json:"weight"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// ManualConstraint forbids staffing PersonA and PersonB on the same team.
type ManualConstraint struct {
	PersonA string `json:"person_a"`
	PersonB string `json:"person_b"`
	Reason  string `json:"reason,omitempty"`
}

// Involves reports whether id is either side of the constraint.
func (c ManualConstraint) Involves(id string) bool {
	return c.PersonA == id || c.PersonB == id
}

// Other returns the opposite side of the constraint, or "" if id is not part of it.
func (c ManualConstraint) Other(id string) string {
	switch id {
	case c.PersonA:
		return c.PersonB
	case c.PersonB:
		return c.PersonA
	}
	return ""
}

// =============================================================================
// RISK
// =============================================================================

// RiskLevel orders bus-factor risk. Higher values are riskier.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskCritical:
		return "CRITICAL"
	case RiskHigh:
		return "HIGH"
	case RiskMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// MarshalText renders the level as its label.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts any label accepted by ParseRiskLevel.
func (r *RiskLevel) UnmarshalText(b []byte) error {
	lvl, ok := ParseRiskLevel(string(b))
	if !ok {
		return &ValidationError{Field: "risk_level", Reason: "unknown risk level " + string(b)}
	}
	*r = lvl
	return nil
}

// ParseRiskLevel is case-insensitive.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW", "":
		return RiskLow, true
	case "MEDIUM":
		return RiskMedium, true
	case "HIGH":
		return RiskHigh, true
	case "CRITICAL":
		return RiskCritical, true
	}
	return RiskLow, false
}

// =============================================================================
// FORMATION OUTPUT
// =============================================================================

// Strategy tags the closed set of team selection policies.
type Strategy string

const (
	StrategySafeBet    Strategy = "safe_bet"
	StrategyGrowthTeam Strategy = "growth_team"
	StrategySpeedSquad Strategy = "speed_squad"
)

// AllStrategies lists every strategy in canonical order.
var AllStrategies = []Strategy{StrategySafeBet, StrategyGrowthTeam, StrategySpeedSquad}

// Valid reports whether s is a known strategy tag.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySafeBet, StrategyGrowthTeam, StrategySpeedSquad:
		return true
	}
	return false
}

// Title is the human label used in dossiers.
func (s Strategy) Title() string {
	switch s {
	case StrategySafeBet:
		return "Safe Bet"
	case StrategyGrowthTeam:
		return "Growth Team"
	case StrategySpeedSquad:
		return "Speed Squad"
	}
	return string(s)
}

// Candidate is a per-request projection of a Person.
type Candidate struct {
	PersonID          string             `json:"person_id"`
	Name              string             `json:"name"`
	Role              string             `json:"role,omitempty"`
	MatchedSkills     []string           `json:"matched_skills"`
	SkillLevels       map[string]float64 `json:"skill_levels"`
	AvgLevel          float64            `json:"avg_level"`
	Score             float64            `json:"score"`
	AvailabilityHours float64            `json:"availability_hours"`
	Conflict          bool               `json:"conflict"`
	Centrality        float64            `json:"centrality"`
	LinchpinRisk      RiskLevel          `json:"linchpin_risk"`
	ForcedInclude     bool               `json:"forced_include,omitempty"`
}

// Recommendation is the executive verdict on a dossier.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendReject  Recommendation = "REJECT"
)

// CheckKind separates constraints that must hold from advisory thresholds.
type CheckKind string

const (
	CheckHard     CheckKind = "hard"
	CheckAdvisory CheckKind = "advisory"
)

// Check is one machine-readable verdict behind a dossier's pros/cons.
type Check struct {
	Name   string    `json:"name"`
	Kind   CheckKind `json:"kind"`
	Passed bool      `json:"passed"`
	Detail string    `json:"detail"`
}

// ExecutiveSummary is derived from the dossier's Checks.
type ExecutiveSummary struct {
	Pros           []string       `json:"pros"`
	Cons           []string       `json:"cons"`
	Recommendation Recommendation `json:"recommendation"`
}

// Dossier describes one proposed team. Never persisted by the core.
type Dossier struct {
	Strategy         Strategy         `json:"strategy"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Team             []Candidate      `json:"team"`
	TotalScore       float64          `json:"total_score"`
	ExecutiveSummary ExecutiveSummary `json:"executive_summary"`
	Rationale        string           `json:"rationale"`
	RiskAnalysis     []string         `json:"risk_analysis"`
	Checks           []Check          `json:"checks"`
	BusFactor        int              `json:"bus_factor"`
}

// MemberIDs returns team member ids in team order.
func (d *Dossier) MemberIDs() []string {
	ids := make([]string, 0, len(d.Team))
	for _, c := range d.Team {
		ids = append(ids, c.PersonID)
	}
	return ids
}

// Contains reports whether personID is on the team.
func (d *Dossier) Contains(personID string) bool {
	for _, c := range d.Team {
		if c.PersonID == personID {
			return true
		}
	}
	return false
}
