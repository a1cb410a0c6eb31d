package guardian

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"
)

// state is one partial team. Aggregates are order independent, so two
// states with the same member set always score the same.
type state struct {
	members    []int
	key        string
	mask       uint64
	sumScore   float64
	sumCollab  float64
	pairWeight float64
	riskSum    float64
	minLevel   float64
	maxLevel   float64
	seniors    int
	juniors    int
	objective  float64
}

func (s *state) has(m int) bool {
	for _, o := range s.members {
		if o == m {
			return true
		}
	}
	return false
}

func (s *state) covered() int { return bits.OnesCount64(s.mask) }

// extend returns a copy of s with m added.
func (s *state) extend(p *pool, m int) state {
	c := &p.members[m]
	next := *s
	next.members = make([]int, len(s.members), len(s.members)+1)
	copy(next.members, s.members)
	for _, o := range s.members {
		next.pairWeight += p.pairWeight(o, m)
	}
	next.members = append(next.members, m)
	next.mask |= c.mask
	next.sumScore += c.Score
	next.sumCollab += c.collab
	next.riskSum += c.risk
	if len(s.members) == 0 {
		next.minLevel, next.maxLevel = c.AvgLevel, c.AvgLevel
	} else {
		next.minLevel = math.Min(next.minLevel, c.AvgLevel)
		next.maxLevel = math.Max(next.maxLevel, c.AvgLevel)
	}
	if p.isSenior(m) {
		next.seniors++
	}
	if p.isJunior(m) {
		next.juniors++
	}
	next.key = memberKey(p, next.members)
	return next
}

func memberKey(p *pool, members []int) string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = p.members[m].PersonID
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// objectiveFunc ranks a (partial) team for one strategy.
type objectiveFunc func(p *pool, s *state) float64

// searchOutcome is the result of one bounded beam search.
type searchOutcome struct {
	best       *state
	reason     string
	expansions int
}

// beamSearch grows partial teams one member per step, keeping the best
// BeamWidth states. Force-included members seed every state. Extensions
// that break a manual constraint are pruned; force-excluded people never
// enter the pool. A search that cannot reach k members reports a reason
// instead of an undersized team.
func beamSearch(ctx context.Context, p *pool, objective objectiveFunc) (searchOutcome, error) {
	var out searchOutcome

	seed := state{}
	for _, m := range p.forced {
		seed = seed.extend(p, m)
	}
	seed.objective = objective(p, &seed)
	beam := []state{seed}

	for size := len(seed.members); size < p.k; size++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		next := make([]state, 0, len(beam)*len(p.members))
		seen := make(map[string]bool)
		capped := false
	expand:
		for i := range beam {
			cur := &beam[i]
			for m := range p.members {
				if cur.has(m) || !p.compatible(cur.members, m) {
					continue
				}
				if out.expansions >= p.cfg.MaxExpansions {
					capped = true
					break expand
				}
				out.expansions++
				ns := cur.extend(p, m)
				if seen[ns.key] {
					continue
				}
				seen[ns.key] = true
				ns.objective = objective(p, &ns)
				next = append(next, ns)
			}
		}

		if len(next) == 0 || (capped && size+1 < p.k) {
			if capped {
				out.reason = fmt.Sprintf("search budget of %d expansions exhausted at %d of %d members", p.cfg.MaxExpansions, size, p.k)
			} else {
				out.reason = fmt.Sprintf("no compatible candidate left after %d of %d members", size, p.k)
			}
			return out, nil
		}

		rank(next)
		if len(next) > p.cfg.BeamWidth {
			next = next[:p.cfg.BeamWidth]
		}
		beam = next
	}

	// Prefer a team that covers every required skill.
	for i := range beam {
		if beam[i].mask == p.full {
			out.best = &beam[i]
			return out, nil
		}
	}
	out.best = &beam[0]
	return out, nil
}

// rank orders by objective, then lower aggregate linchpin risk, then key.
func rank(states []state) {
	sort.Slice(states, func(i, j int) bool {
		a, b := &states[i], &states[j]
		if a.objective != b.objective {
			return a.objective > b.objective
		}
		if a.riskSum != b.riskSum {
			return a.riskSum < b.riskSum
		}
		return a.key < b.key
	})
}
