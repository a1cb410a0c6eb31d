package guardian

import (
	"fmt"
	"strings"
	"time"

	"smartchimera/internal/mission"
	"smartchimera/internal/types"
)

// Request asks for up to three team proposals.
type Request struct {
	RequiredSkills []string `json:"required_skills"`
	K              int      `json:"k"`
	MissionProfile string   `json:"mission_profile,omitempty"`
	MinHours       float64  `json:"min_hours"`
	Week           string   `json:"week,omitempty"`
	ForceInclude   []string `json:"force_include,omitempty"`
	ForceExclude   []string `json:"force_exclude,omitempty"`
	Mode           string   `json:"mode,omitempty"`
}

// normalized is a validated request with deduplicated lists.
type normalized struct {
	Request
	include map[string]bool
	exclude map[string]bool
}

// normalize validates r. Malformed fields yield a ValidationError; lists that
// contradict each other yield an InfeasibleError.
func (r Request) normalize(cfg Config, now time.Time) (*normalized, error) {
	out := normalized{Request: r}

	seen := make(map[string]bool)
	out.RequiredSkills = nil
	for _, s := range r.RequiredSkills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.RequiredSkills = append(out.RequiredSkills, s)
	}
	if len(out.RequiredSkills) == 0 {
		return nil, &types.ValidationError{Field: "required_skills", Reason: "at least one skill is required"}
	}
	if len(out.RequiredSkills) > cfg.MaxRequiredSkills {
		return nil, &types.ValidationError{Field: "required_skills", Reason: fmt.Sprintf("at most %d skills", cfg.MaxRequiredSkills)}
	}
	if r.K < 1 {
		return nil, &types.ValidationError{Field: "k", Reason: "team size must be at least 1"}
	}
	if r.MinHours < 0 {
		return nil, &types.ValidationError{Field: "min_hours", Reason: "must be non-negative"}
	}
	switch strings.ToLower(r.Mode) {
	case "", mission.ModePerformance, mission.ModeResilient:
		out.Mode = strings.ToLower(r.Mode)
	default:
		return nil, &types.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	if out.Week == "" {
		y, w := now.ISOWeek()
		out.Week = fmt.Sprintf("%d-W%02d", y, w)
	}

	out.ForceInclude, out.include = dedupeIDs(r.ForceInclude)
	out.ForceExclude, out.exclude = dedupeIDs(r.ForceExclude)

	var reasons []string
	for _, id := range out.ForceInclude {
		if out.exclude[id] {
			reasons = append(reasons, fmt.Sprintf("%s is both force-included and force-excluded", id))
		}
	}
	if len(out.ForceInclude) > r.K {
		reasons = append(reasons, fmt.Sprintf("%d force-included people do not fit a team of %d", len(out.ForceInclude), r.K))
	}
	if len(reasons) > 0 {
		return nil, types.Infeasible(reasons...)
	}
	return &out, nil
}

func dedupeIDs(ids []string) ([]string, map[string]bool) {
	set := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || set[id] {
			continue
		}
		set[id] = true
		out = append(out, id)
	}
	return out, set
}
