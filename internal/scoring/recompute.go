package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"smartchimera/internal/logging"
	"smartchimera/internal/types"
)

// RecomputeReport is the outcome of a full level recompute.
type RecomputeReport struct {
	Persons int                      `json:"persons"`
	Records []types.SkillLevelRecord `json:"records"`
}

// Recompute scores every (person, skill) pair in the graph and, when rec is
// non-nil, persists the snapshot. The snapshot is a view for reporting only.
func (s *Scorer) Recompute(ctx context.Context, graph types.EvidenceGraph, rec types.SkillLevelRecorder, now time.Time) (*RecomputeReport, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryScoring, "Recompute")
	defer timer.Stop()

	persons, err := graph.Persons(ctx)
	if err != nil {
		return nil, types.WrapCollaborator("list persons", err)
	}
	ids := make([]string, 0, len(persons))
	for _, p := range persons {
		ids = append(ids, p.ID)
	}
	byPerson, err := graph.EvidenceForPersons(ctx, ids)
	if err != nil {
		return nil, types.WrapCollaborator("load evidence", err)
	}

	report := &RecomputeReport{Persons: len(persons)}
	for _, id := range ids {
		for skill, items := range GroupBySkill(byPerson[id]) {
			report.Records = append(report.Records, types.SkillLevelRecord{
				PersonID:   id,
				Skill:      skill,
				Level:      s.Level(items, now),
				Frequency:  len(items),
				ComputedAt: now,
			})
		}
	}
	sort.Slice(report.Records, func(i, j int) bool {
		a, b := report.Records[i], report.Records[j]
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		return a.Skill < b.Skill
	})
	logging.ScoringDebug("computed %d skill levels for %d persons", len(report.Records), len(persons))

	if rec != nil {
		if err := rec.RecordSkillLevels(ctx, report.Records); err != nil {
			return nil, fmt.Errorf("record skill levels: %w", types.WrapCollaborator("record skill levels", err))
		}
	}
	logging.Audit().SkillRecompute(len(report.Records), time.Since(start).Milliseconds())
	return report, nil
}
