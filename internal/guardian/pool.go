package guardian

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
	"smartchimera/internal/mission"
	"smartchimera/internal/scoring"
	"smartchimera/internal/types"
)

// poolInput is everything read from the evidence graph for one request.
type poolInput struct {
	persons     []types.Person
	evidence    map[string][]types.Evidence
	hours       map[string]float64
	hasHours    map[string]bool
	edges       []types.CollaborationEdge
	constraints []types.ManualConstraint
	analysis    *linchpin.Analysis
}

type pair struct{ a, b int }

func mkPair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// member is a scored candidate plus the search-only fields.
type member struct {
	types.Candidate
	mask   uint64
	collab float64
	risk   float64
}

// pool is the immutable scored candidate set shared by every strategy.
type pool struct {
	cfg      Config
	profile  mission.Profile
	mode     string
	penalty  float64
	required []string
	full     uint64
	k        int

	members  []member
	index    map[string]int
	forced   []int
	excluded map[string]bool
	conflict map[pair]types.ManualConstraint
	weight   map[pair]float64
}

// effectivePenalty is the profile's linchpin penalty, raised to the
// resilient floor when the request runs in resilient mode.
func effectivePenalty(profile mission.Profile, mode string, cfg Config) float64 {
	w := profile.Weights.LinchpinPenalty
	if mode == mission.ModeResilient && w < cfg.ResilientPenaltyFloor {
		w = cfg.ResilientPenaltyFloor
	}
	return w
}

// buildPool scores every eligible person. Non-forced people need at least
// one matched skill and MinHours of availability; forced people bypass both.
func buildPool(req *normalized, profile mission.Profile, mode string, in *poolInput, scorer *scoring.Scorer, now time.Time, cfg Config) (*pool, error) {
	p := &pool{
		cfg:      cfg,
		profile:  profile,
		mode:     mode,
		penalty:  effectivePenalty(profile, mode, cfg),
		required: req.RequiredSkills,
		full:     (uint64(1) << uint(len(req.RequiredSkills))) - 1,
		k:        req.K,
		index:    make(map[string]int),
		excluded: req.exclude,
		conflict: make(map[pair]types.ManualConstraint),
		weight:   make(map[pair]float64),
	}
	reqIndex := make(map[string]int, len(req.RequiredSkills))
	for i, s := range req.RequiredSkills {
		reqIndex[strings.ToLower(s)] = i
	}

	persons := append([]types.Person(nil), in.persons...)
	sort.Slice(persons, func(i, j int) bool { return persons[i].ID < persons[j].ID })

	w := profile.Weights
	for _, person := range persons {
		if req.exclude[person.ID] {
			continue
		}
		forced := req.include[person.ID]

		levels := make(map[string]float64)
		var mask uint64
		for skill, lvl := range scorer.Levels(in.evidence[person.ID], now) {
			i, ok := reqIndex[strings.ToLower(skill)]
			if !ok || lvl <= 0 {
				continue
			}
			name := req.RequiredSkills[i]
			if lvl > levels[name] {
				levels[name] = lvl
			}
			mask |= 1 << uint(i)
		}
		if len(levels) == 0 && !forced {
			continue
		}

		hours := in.hours[person.ID]
		if forced && !in.hasHours[person.ID] {
			hours = cfg.ForcedAvailabilityHours
			logging.FormationWarn("force-included %s has no availability for %s, assuming %.0fh", person.ID, req.Week, hours)
		}
		if !forced && hours < req.MinHours {
			continue
		}

		matched := make([]string, 0, len(levels))
		var sum float64
		for name, lvl := range levels {
			matched = append(matched, name)
			sum += lvl
		}
		sort.Strings(matched)
		var avg float64
		if len(levels) > 0 {
			avg = sum / float64(len(levels))
		}

		c := types.Candidate{
			PersonID:          person.ID,
			Name:              person.Name,
			Role:              person.Role,
			MatchedSkills:     matched,
			SkillLevels:       levels,
			AvgLevel:          avg,
			AvailabilityHours: hours,
			ForcedInclude:     forced,
		}
		if in.analysis != nil {
			c.Centrality = in.analysis.Scores[person.ID]
			c.LinchpinRisk = in.analysis.Report(person.ID).Risk
		}
		c.Score = avg*w.Skill + hours/cfg.AvailabilityNorm*w.Availability - p.penalty*c.Centrality*cfg.PenaltyScale

		p.index[person.ID] = len(p.members)
		p.members = append(p.members, member{Candidate: c, mask: mask, risk: float64(c.LinchpinRisk)})
	}

	for _, id := range req.ForceInclude {
		i, ok := p.index[id]
		if !ok {
			return nil, types.Infeasible(fmt.Sprintf("force-included person %s is not available for this request", id))
		}
		p.forced = append(p.forced, i)
	}

	for _, mc := range in.constraints {
		a, okA := p.index[mc.PersonA]
		b, okB := p.index[mc.PersonB]
		if !okA || !okB || a == b {
			continue
		}
		p.conflict[mkPair(a, b)] = mc
	}
	for i := 0; i < len(p.forced); i++ {
		for j := i + 1; j < len(p.forced); j++ {
			if mc, bad := p.conflict[mkPair(p.forced[i], p.forced[j])]; bad {
				return nil, types.Infeasible(fmt.Sprintf("force-included %s and %s are under a manual constraint", mc.PersonA, mc.PersonB))
			}
		}
	}

	shared := make([]float64, len(p.members))
	partners := make([]int, len(p.members))
	for _, e := range in.edges {
		a, okA := p.index[e.A]
		b, okB := p.index[e.B]
		if !okA || !okB || a == b {
			continue
		}
		key := mkPair(a, b)
		if _, dup := p.weight[key]; !dup {
			partners[a]++
			partners[b]++
		}
		p.weight[key] += e.Weight
		shared[a] += e.Weight
		shared[b] += e.Weight
	}
	for i := range p.members {
		p.members[i].collab = (shared[i] + float64(partners[i])*cfg.CollabFactor) * w.Collaboration
	}
	return p, nil
}

// compatible reports whether m can join members without breaking a
// manual constraint.
func (p *pool) compatible(members []int, m int) bool {
	for _, o := range members {
		if _, bad := p.conflict[mkPair(o, m)]; bad {
			return false
		}
	}
	return true
}

func (p *pool) pairWeight(a, b int) float64 {
	return p.weight[mkPair(a, b)]
}

func (p *pool) isSenior(m int) bool { return p.members[m].AvgLevel >= p.cfg.SeniorLevel }
func (p *pool) isJunior(m int) bool { return p.members[m].AvgLevel <= p.cfg.JuniorLevel }

// missing lists required skills absent from mask.
func (p *pool) missing(mask uint64) []string {
	var out []string
	for i, s := range p.required {
		if mask&(1<<uint(i)) == 0 {
			out = append(out, s)
		}
	}
	return out
}
