package policy

import (
	"context"
	"sort"
	"time"

	"smartchimera/internal/logging"
	"smartchimera/internal/scoring"
	"smartchimera/internal/types"
)

// DefaultEvidenceLimit caps the evidence items kept per contributor.
const DefaultEvidenceLimit = 5

// Member identifies one team member in a dossier.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Contributor is one member's evidence for one skill.
type Contributor struct {
	PersonID    string           `json:"person_id"`
	Name        string           `json:"name"`
	Role        string           `json:"role,omitempty"`
	Level       float64          `json:"level"`
	Frequency   int              `json:"frequency"`
	RecencyDays *int             `json:"recency_days"`
	Validated   bool             `json:"validated"`
	ValidatedBy string           `json:"validated_by,omitempty"`
	Sources     map[string]int   `json:"sources"`
	Evidence    []types.Evidence `json:"evidence"`
}

// SkillEvidence groups contributors by skill.
type SkillEvidence struct {
	Skill        string         `json:"skill"`
	Sources      map[string]int `json:"sources"`
	Contributors []Contributor  `json:"contributors"`
}

// Summary describes the dossier as a whole.
type Summary struct {
	TeamSize         int            `json:"team_size"`
	SkillCount       int            `json:"skill_count"`
	TotalEvidence    int            `json:"total_evidence"`
	AverageFrequency float64        `json:"average_frequency"`
	MinFrequency     int            `json:"min_frequency"`
	SourceBreakdown  map[string]int `json:"source_breakdown"`
	GeneratedAt      time.Time      `json:"generated_at"`
	LatestEvidence   *time.Time     `json:"latest_evidence"`
}

// TeamEvidence is the evidence dossier the engine evaluates.
type TeamEvidence struct {
	MissionProfile string          `json:"mission_profile"`
	Team           []string        `json:"team"`
	Members        []Member        `json:"members"`
	Skills         []SkillEvidence `json:"skills"`
	Summary        Summary         `json:"summary"`
}

// Builder assembles TeamEvidence from the evidence graph.
type Builder struct {
	graph         types.EvidenceGraph
	scorer        *scoring.Scorer
	now           func() time.Time
	evidenceLimit int
}

// NewBuilder creates a builder. A nil scorer uses scoring.Default().
func NewBuilder(graph types.EvidenceGraph, scorer *scoring.Scorer) *Builder {
	if scorer == nil {
		scorer = scoring.Default()
	}
	return &Builder{graph: graph, scorer: scorer, now: time.Now, evidenceLimit: DefaultEvidenceLimit}
}

// SetClock overrides the clock used for recency.
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// SetEvidenceLimit sets the per-contributor cap. Zero keeps everything.
func (b *Builder) SetEvidenceLimit(n int) {
	if n < 0 {
		n = 0
	}
	b.evidenceLimit = n
}

// Build gathers every skill the team members have evidence for.
func (b *Builder) Build(ctx context.Context, teamIDs []string, profileID string) (*TeamEvidence, error) {
	timer := logging.StartTimer(logging.CategoryPolicy, "BuildDossier")
	defer timer.Stop()

	team := dedupe(teamIDs)
	now := b.now()
	out := &TeamEvidence{
		MissionProfile: profileID,
		Team:           team,
		Members:        []Member{},
		Skills:         []SkillEvidence{},
		Summary: Summary{
			TeamSize:        len(team),
			SourceBreakdown: map[string]int{},
			GeneratedAt:     now.UTC().Truncate(time.Second),
		},
	}
	if len(team) == 0 {
		return out, nil
	}

	persons, err := b.graph.Persons(ctx)
	if err != nil {
		return nil, types.WrapCollaborator("list persons", err)
	}
	byID := make(map[string]types.Person, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
	}
	evidence, err := b.graph.EvidenceForPersons(ctx, team)
	if err != nil {
		return nil, types.WrapCollaborator("load evidence", err)
	}

	groups := make(map[string][]Contributor)
	var frequencies []int
	var latest time.Time
	for _, id := range team {
		p, ok := byID[id]
		if !ok {
			logging.PolicyDebug("dossier: unknown person %s skipped", id)
			continue
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out.Members = append(out.Members, Member{ID: p.ID, Name: name, Role: p.Role})

		for skill, items := range scoring.GroupBySkill(evidence[id]) {
			st := b.scorer.Summarize(items, now)
			c := Contributor{
				PersonID:    p.ID,
				Name:        name,
				Role:        p.Role,
				Level:       st.Level,
				Frequency:   st.Frequency,
				RecencyDays: st.RecencyDays,
				Validated:   st.Validated,
				ValidatedBy: st.ValidatedBy,
				Sources:     map[string]int{},
				Evidence:    b.newestFirst(items),
			}
			for _, e := range items {
				src := e.Source
				if src == "" {
					src = "unknown"
				}
				c.Sources[src]++
				out.Summary.SourceBreakdown[src]++
			}
			if st.LastEvidence.After(latest) {
				latest = st.LastEvidence
			}
			frequencies = append(frequencies, st.Frequency)
			out.Summary.TotalEvidence += st.Frequency
			groups[skill] = append(groups[skill], c)
		}
	}

	skills := make([]string, 0, len(groups))
	for s := range groups {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	for _, s := range skills {
		contributors := groups[s]
		sort.Slice(contributors, func(i, j int) bool {
			if contributors[i].Name != contributors[j].Name {
				return contributors[i].Name < contributors[j].Name
			}
			return contributors[i].PersonID < contributors[j].PersonID
		})
		sources := map[string]int{}
		for _, c := range contributors {
			for src, n := range c.Sources {
				sources[src] += n
			}
		}
		out.Skills = append(out.Skills, SkillEvidence{Skill: s, Sources: sources, Contributors: contributors})
	}

	out.Summary.SkillCount = len(out.Skills)
	if len(frequencies) > 0 {
		out.Summary.AverageFrequency = float64(out.Summary.TotalEvidence) / float64(len(frequencies))
		out.Summary.MinFrequency = frequencies[0]
		for _, f := range frequencies[1:] {
			if f < out.Summary.MinFrequency {
				out.Summary.MinFrequency = f
			}
		}
	}
	if !latest.IsZero() {
		out.Summary.LatestEvidence = &latest
	}

	logging.PolicyDebug("dossier built: %d members, %d skills, %d evidence items",
		len(out.Members), out.Summary.SkillCount, out.Summary.TotalEvidence)
	return out, nil
}

func (b *Builder) newestFirst(items []types.Evidence) []types.Evidence {
	sorted := make([]types.Evidence, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if b.evidenceLimit > 0 && len(sorted) > b.evidenceLimit {
		sorted = sorted[:b.evidenceLimit]
	}
	return sorted
}

// FromDossier returns the member ids of a formed team, in team order.
func FromDossier(d *types.Dossier) []string {
	if d == nil {
		return nil
	}
	return d.MemberIDs()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
