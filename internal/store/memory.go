package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"smartchimera/internal/types"
)

// MemoryGraph is an in-process EvidenceGraph built from a Dataset. It backs
// `--dataset` CLI runs and package tests. Reads never mutate the dataset.
type MemoryGraph struct {
	persons     []types.Person
	byID        map[string]PersonRecord
	skills      []types.Skill
	evidence    map[string][]types.Evidence
	edges       []types.CollaborationEdge
	constraints []types.ManualConstraint

	mu       sync.Mutex
	recorded []types.SkillLevelRecord
}

// NewMemoryGraph indexes ds. Evidence is sorted by time per person.
func NewMemoryGraph(ds *Dataset) *MemoryGraph {
	g := &MemoryGraph{
		byID:     make(map[string]PersonRecord, len(ds.Persons)),
		skills:   ds.SkillCatalogue(),
		evidence: make(map[string][]types.Evidence),
	}
	for _, p := range ds.Persons {
		g.persons = append(g.persons, types.Person{ID: p.ID, Name: p.Name, Role: p.Role})
		g.byID[p.ID] = p
	}
	sort.Slice(g.persons, func(i, j int) bool { return g.persons[i].ID < g.persons[j].ID })

	for _, r := range ds.Evidence {
		g.evidence[r.Person] = append(g.evidence[r.Person], r.toEvidence())
	}
	for id := range g.evidence {
		items := g.evidence[id]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	}
	for _, c := range ds.Collaborations {
		g.edges = append(g.edges, types.CollaborationEdge{A: c.A, B: c.B, Weight: c.Weight, LastSeen: c.LastSeen})
	}
	for _, c := range ds.Constraints {
		g.constraints = append(g.constraints, types.ManualConstraint{PersonA: c.A, PersonB: c.B, Reason: c.Reason})
	}
	return g
}

func (g *MemoryGraph) Persons(ctx context.Context) ([]types.Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.Person(nil), g.persons...), nil
}

func (g *MemoryGraph) PersonsWithSkills(ctx context.Context, skills []string) ([]types.Person, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(skills))
	for _, s := range skills {
		want[strings.ToLower(s)] = true
	}
	var out []types.Person
	for _, p := range g.persons {
		for _, e := range g.evidence[p.ID] {
			if want[strings.ToLower(e.Skill)] {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (g *MemoryGraph) Skills(ctx context.Context) ([]types.Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.Skill(nil), g.skills...), nil
}

func (g *MemoryGraph) Evidence(ctx context.Context, personID, skill string) ([]types.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []types.Evidence
	for _, e := range g.evidence[personID] {
		if e.Skill == skill {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *MemoryGraph) EvidenceForPersons(ctx context.Context, personIDs []string) (map[string][]types.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]types.Evidence, len(personIDs))
	for _, id := range personIDs {
		if items := g.evidence[id]; len(items) > 0 {
			out[id] = append([]types.Evidence(nil), items...)
		}
	}
	return out, nil
}

func (g *MemoryGraph) CollaborationEdges(ctx context.Context, personIDs []string) ([]types.CollaborationEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if personIDs == nil {
		return append([]types.CollaborationEdge(nil), g.edges...), nil
	}
	in := toSet(personIDs)
	var out []types.CollaborationEdge
	for _, e := range g.edges {
		if in[e.A] && in[e.B] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *MemoryGraph) Availability(ctx context.Context, personID, week string) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	p, ok := g.byID[personID]
	if !ok {
		return 0, false, nil
	}
	if h, ok := p.Availability[week]; ok {
		return h, true, nil
	}
	if p.DefaultHours != nil {
		return *p.DefaultHours, true, nil
	}
	return 0, false, nil
}

func (g *MemoryGraph) ManualConstraints(ctx context.Context, personIDs []string) ([]types.ManualConstraint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := toSet(personIDs)
	var out []types.ManualConstraint
	for _, c := range g.constraints {
		if in[c.PersonA] || in[c.PersonB] {
			out = append(out, c)
		}
	}
	return out, nil
}

// RecordSkillLevels keeps the latest snapshot in memory.
func (g *MemoryGraph) RecordSkillLevels(ctx context.Context, levels []types.SkillLevelRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorded = append([]types.SkillLevelRecord(nil), levels...)
	return nil
}

// RecordedLevels returns the last snapshot written by RecordSkillLevels.
func (g *MemoryGraph) RecordedLevels() []types.SkillLevelRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.SkillLevelRecord(nil), g.recorded...)
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

var (
	_ types.EvidenceGraph      = (*MemoryGraph)(nil)
	_ types.SkillLevelRecorder = (*MemoryGraph)(nil)
)
