package guardian

import (
	"context"

	"smartchimera/internal/types"
)

// strategy is one of the closed set of team selection policies. Every
// strategy runs the same bounded beam search with its own objective.
type strategy interface {
	Tag() types.Strategy
	Description() string
	Rationale() string
	selectTeam(ctx context.Context, p *pool) (searchOutcome, error)
}

// strategies lists every policy in canonical order.
var strategies = []strategy{SafeBet{}, GrowthTeam{}, SpeedSquad{}}

// strategyFor returns the policy for tag, or nil.
func strategyFor(tag types.Strategy) strategy {
	for _, s := range strategies {
		if s.Tag() == tag {
			return s
		}
	}
	return nil
}

// SafeBet maximizes mean skill level and availability. Ties go to the team
// with the lower aggregate linchpin risk.
type SafeBet struct{}

func (SafeBet) Tag() types.Strategy { return types.StrategySafeBet }

func (SafeBet) Description() string {
	return "Proven, available people with the strongest matched skill levels."
}

func (SafeBet) Rationale() string {
	return "Chosen for the highest combined skill level and availability, preferring lower linchpin exposure on ties"
}

func (SafeBet) selectTeam(ctx context.Context, p *pool) (searchOutcome, error) {
	return beamSearch(ctx, p, safeBetObjective)
}

func safeBetObjective(p *pool, s *state) float64 {
	return s.sumScore + p.cfg.CoverageBonus*float64(s.covered())
}

// GrowthTeam mixes senior and junior people so knowledge flows inside the
// team, while still covering the required skills.
type GrowthTeam struct{}

func (GrowthTeam) Tag() types.Strategy { return types.StrategyGrowthTeam }

func (GrowthTeam) Description() string {
	return "Seniors paired with juniors for mentorship and skill transfer."
}

func (GrowthTeam) Rationale() string {
	return "Chosen for a wide senior/junior spread that turns delivery into mentorship while keeping skill coverage"
}

func (GrowthTeam) selectTeam(ctx context.Context, p *pool) (searchOutcome, error) {
	return beamSearch(ctx, p, growthObjective)
}

func growthObjective(p *pool, s *state) float64 {
	v := s.sumScore + s.sumCollab + p.cfg.CoverageBonus*float64(s.covered())
	v += p.cfg.SpreadWeight * (s.maxLevel - s.minLevel)
	if s.seniors > 0 && s.juniors > 0 {
		v += p.cfg.MentorBonus
	}
	return v
}

// SpeedSquad favours people who have already worked together.
type SpeedSquad struct{}

func (SpeedSquad) Tag() types.Strategy { return types.StrategySpeedSquad }

func (SpeedSquad) Description() string {
	return "People with a shared track record who can start without ramp-up."
}

func (SpeedSquad) Rationale() string {
	return "Chosen for the strongest prior collaboration among members, so the team can move fast from day one"
}

func (SpeedSquad) selectTeam(ctx context.Context, p *pool) (searchOutcome, error) {
	return beamSearch(ctx, p, speedObjective)
}

func speedObjective(p *pool, s *state) float64 {
	return s.sumScore + s.sumCollab + p.cfg.PairWeight*s.pairWeight + p.cfg.CoverageBonus*float64(s.covered())
}
