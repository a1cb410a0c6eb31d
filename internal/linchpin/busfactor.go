package linchpin

import "strings"

// BusFactor is the number of members that can be removed, most damaging
// first, before more than half of the required skills are uncovered.
type BusFactor struct {
	Factor          int      `json:"factor"`
	CriticalMembers []string `json:"critical_members"`
	// SoleHolders are members who alone cover at least one required skill.
	SoleHolders []string `json:"sole_holders"`
}

// Resilient reports whether every required skill the team covers survives
// the loss of any single member.
func (bf BusFactor) Resilient() bool {
	return len(bf.SoleHolders) == 0
}

// TeamBusFactor greedily removes the member whose loss uncovers the most
// required skills until more than half are lost or no removal does damage.
// Skill names compare case-insensitively.
func TeamBusFactor(team []string, required []string, holdings Holdings, floor float64) BusFactor {
	req := make(map[string]struct{}, len(required))
	for _, s := range required {
		req[strings.ToLower(s)] = struct{}{}
	}

	coverage := make(map[string]map[string]struct{})
	for _, id := range team {
		for skill, lvl := range holdings[id] {
			key := strings.ToLower(skill)
			if _, ok := req[key]; !ok || lvl < floor {
				continue
			}
			if coverage[key] == nil {
				coverage[key] = make(map[string]struct{})
			}
			coverage[key][id] = struct{}{}
		}
	}

	uncovered := func(removed map[string]bool) int {
		n := 0
		for _, members := range coverage {
			alive := false
			for m := range members {
				if !removed[m] {
					alive = true
					break
				}
			}
			if !alive {
				n++
			}
		}
		return n
	}

	bf := BusFactor{CriticalMembers: []string{}, SoleHolders: []string{}}
	for _, id := range team {
		for _, members := range coverage {
			if _, ok := members[id]; ok && len(members) == 1 {
				bf.SoleHolders = append(bf.SoleHolders, id)
				break
			}
		}
	}

	removed := make(map[string]bool, len(team))
	for range team {
		worst, worstDamage := "", 0
		for _, id := range team {
			if removed[id] {
				continue
			}
			removed[id] = true
			damage := uncovered(removed)
			delete(removed, id)
			if damage > worstDamage {
				worst, worstDamage = id, damage
			}
		}
		if worst == "" {
			break
		}
		removed[worst] = true
		bf.Factor++
		bf.CriticalMembers = append(bf.CriticalMembers, worst)

		if float64(uncovered(removed)) > float64(len(req))*0.5 {
			break
		}
	}
	return bf
}
