package guardian

import (
	"fmt"
	"math"
	"strings"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
	"smartchimera/internal/mission"
	"smartchimera/internal/types"
)

// Check names.
const (
	CheckSkillCoverage     = "skill_coverage"
	CheckForcedMembership  = "forced_membership"
	CheckManualConstraints = "manual_constraints"
	CheckForceExclusion    = "force_exclusion"
	CheckLinchpinExposure  = "linchpin_exposure"
	CheckAvailability      = "availability"
	CheckCompetence        = "competence"
	CheckBusFactor         = "bus_factor"
)

// assemble turns a finished search state into a dossier.
func assemble(p *pool, s strategy, st *state) types.Dossier {
	team := make([]types.Candidate, 0, len(st.members))
	ids := make([]string, 0, len(st.members))
	holdings := make(linchpin.Holdings, len(st.members))
	var total float64
	for _, m := range st.members {
		c := p.members[m].Candidate
		total += c.Score
		ids = append(ids, c.PersonID)
		holdings[c.PersonID] = c.SkillLevels
		team = append(team, roundCandidate(c))
	}
	// Conflict marks a constraint with a teammate, not with anyone in the pool.
	for i := range st.members {
		for j := i + 1; j < len(st.members); j++ {
			if _, bad := p.conflict[mkPair(st.members[i], st.members[j])]; bad {
				team[i].Conflict = true
				team[j].Conflict = true
			}
		}
	}
	bf := linchpin.TeamBusFactor(ids, p.required, holdings, p.cfg.CompetenceFloor)

	checks := runChecks(p, st, team, bf)
	summary := summarize(checks)
	logging.FormationDebug("%s: %v -> %s (bus factor %d, sole holders %v)", s.Tag(), ids, summary.Recommendation, bf.Factor, bf.SoleHolders)

	return types.Dossier{
		Strategy:         s.Tag(),
		Title:            s.Tag().Title(),
		Description:      s.Description(),
		Team:             team,
		TotalScore:       round4(total),
		ExecutiveSummary: summary,
		Rationale:        rationale(s, summary.Recommendation, checks),
		RiskAnalysis:     riskAnalysis(p, team, bf),
		Checks:           checks,
		BusFactor:        bf.Factor,
	}
}

func runChecks(p *pool, st *state, team []types.Candidate, bf linchpin.BusFactor) []types.Check {
	checks := make([]types.Check, 0, 8)
	add := func(name string, kind types.CheckKind, passed bool, pass, fail string) {
		detail := pass
		if !passed {
			detail = fail
		}
		checks = append(checks, types.Check{Name: name, Kind: kind, Passed: passed, Detail: detail})
	}

	missing := p.missing(st.mask)
	add(CheckSkillCoverage, types.CheckHard, len(missing) == 0,
		fmt.Sprintf("Covers all %d required skills", len(p.required)),
		fmt.Sprintf("Missing coverage for %s", strings.Join(missing, ", ")))

	var absent []string
	for _, m := range p.forced {
		if !st.has(m) {
			absent = append(absent, p.members[m].PersonID)
		}
	}
	forcedPass := "No force-included people requested"
	if len(p.forced) > 0 {
		forcedPass = fmt.Sprintf("All %d force-included people are on the team", len(p.forced))
	}
	add(CheckForcedMembership, types.CheckHard, len(absent) == 0,
		forcedPass,
		fmt.Sprintf("Force-included people missing: %s", strings.Join(absent, ", ")))

	var clashes []string
	for i := 0; i < len(st.members); i++ {
		for j := i + 1; j < len(st.members); j++ {
			if mc, bad := p.conflict[mkPair(st.members[i], st.members[j])]; bad {
				clashes = append(clashes, mc.PersonA+"/"+mc.PersonB)
			}
		}
	}
	add(CheckManualConstraints, types.CheckHard, len(clashes) == 0,
		"No manual constraint between any two members",
		fmt.Sprintf("Constrained pairs on the team: %s", strings.Join(clashes, ", ")))

	var excluded []string
	for _, c := range team {
		if p.excluded[c.PersonID] {
			excluded = append(excluded, c.PersonID)
		}
	}
	add(CheckForceExclusion, types.CheckHard, len(excluded) == 0,
		"No force-excluded person on the team",
		fmt.Sprintf("Force-excluded people on the team: %s", strings.Join(excluded, ", ")))

	var linchpins []string
	minHours := math.Inf(1)
	var minName string
	var levelSum float64
	for _, c := range team {
		if c.LinchpinRisk >= types.RiskHigh {
			linchpins = append(linchpins, fmt.Sprintf("%s (%s)", displayName(c), c.LinchpinRisk))
		}
		if c.AvailabilityHours < minHours {
			minHours, minName = c.AvailabilityHours, displayName(c)
		}
		levelSum += c.AvgLevel
	}
	add(CheckLinchpinExposure, types.CheckAdvisory, len(linchpins) == 0,
		"No HIGH or CRITICAL linchpins on the team",
		fmt.Sprintf("Linchpins on the team: %s", strings.Join(linchpins, ", ")))

	add(CheckAvailability, types.CheckAdvisory, len(team) > 0 && minHours >= p.cfg.AdvisoryMinHours,
		fmt.Sprintf("Every member has at least %.0fh/week available", p.cfg.AdvisoryMinHours),
		fmt.Sprintf("%s has only %.0fh/week available", minName, minHours))

	meanLevel := 0.0
	if len(team) > 0 {
		meanLevel = levelSum / float64(len(team))
	}
	add(CheckCompetence, types.CheckAdvisory, meanLevel >= p.cfg.CompetenceTarget,
		fmt.Sprintf("Mean matched skill level %.2f meets the %.1f target", meanLevel, p.cfg.CompetenceTarget),
		fmt.Sprintf("Mean matched skill level %.2f is below the %.1f target", meanLevel, p.cfg.CompetenceTarget))

	add(CheckBusFactor, types.CheckAdvisory, bf.Resilient(),
		"Every covered skill survives losing any single member",
		fmt.Sprintf("Sole holders of a required skill: %s", strings.Join(bf.SoleHolders, ", ")))

	return checks
}

// summarize derives the verdict and one bullet per check.
func summarize(checks []types.Check) types.ExecutiveSummary {
	sum := types.ExecutiveSummary{Pros: []string{}, Cons: []string{}, Recommendation: types.RecommendApprove}
	for _, c := range checks {
		if c.Passed {
			sum.Pros = append(sum.Pros, c.Detail)
			continue
		}
		sum.Cons = append(sum.Cons, c.Detail)
		switch {
		case c.Kind == types.CheckHard:
			sum.Recommendation = types.RecommendReject
		case sum.Recommendation == types.RecommendApprove:
			sum.Recommendation = types.RecommendReview
		}
	}
	return sum
}

func rationale(s strategy, rec types.Recommendation, checks []types.Check) string {
	var failed []string
	for _, c := range checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	switch rec {
	case types.RecommendReject:
		return fmt.Sprintf("%s. Rejected: hard checks failed (%s).", s.Rationale(), strings.Join(failed, ", "))
	case types.RecommendReview:
		return fmt.Sprintf("%s. Review advised: %s below threshold.", s.Rationale(), strings.Join(failed, ", "))
	}
	return fmt.Sprintf("%s. All checks pass.", s.Rationale())
}

func riskAnalysis(p *pool, team []types.Candidate, bf linchpin.BusFactor) []string {
	var out []string
	var sum float64
	critical := 0
	seniors, juniors := 0, 0
	for _, c := range team {
		sum += c.AvgLevel
		if c.LinchpinRisk == types.RiskCritical {
			critical++
		}
		if c.AvgLevel >= p.cfg.SeniorLevel {
			seniors++
		}
		if c.AvgLevel <= p.cfg.JuniorLevel {
			juniors++
		}
	}
	if len(team) > 0 && sum/float64(len(team)) > 4.0 {
		out = append(out, "High technical competence")
	}
	if critical == 0 {
		out = append(out, "Low bus-factor risk: no critical linchpins")
	} else {
		out = append(out, fmt.Sprintf("Contains %d critical linchpin(s)", critical))
	}
	if seniors > 0 && juniors > 0 {
		out = append(out, fmt.Sprintf("Mentorship pairing: %d senior, %d junior", seniors, juniors))
	}
	if p.mode == mission.ModeResilient {
		out = append(out, "Optimized for long-term stability (resilient mode)")
	} else {
		out = append(out, "Performance-focused formation")
	}
	out = append(out, fmt.Sprintf("Bus factor %d (critical members: %s)", bf.Factor, describeCritical(bf)))
	return out
}

func describeCritical(bf linchpin.BusFactor) string {
	if len(bf.CriticalMembers) == 0 {
		return "none"
	}
	return strings.Join(bf.CriticalMembers, ", ")
}

func displayName(c types.Candidate) string {
	if c.Name != "" {
		return c.Name
	}
	return c.PersonID
}

func roundCandidate(c types.Candidate) types.Candidate {
	c.Score = round4(c.Score)
	c.AvgLevel = round4(c.AvgLevel)
	c.Centrality = round4(c.Centrality)
	levels := make(map[string]float64, len(c.SkillLevels))
	for k, v := range c.SkillLevels {
		levels[k] = round4(v)
	}
	c.SkillLevels = levels
	return c
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
