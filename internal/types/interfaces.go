package types

import (
	"context"
	"time"
)

// EvidenceGraph is the read side of the evidence store. Every method is
// read-only; a formation request never writes through it.
type EvidenceGraph interface {
	// Persons lists every known person.
	Persons(ctx context.Context) ([]Person, error)
	// PersonsWithSkills lists persons holding evidence for at least one of skills.
	PersonsWithSkills(ctx context.Context, skills []string) ([]Person, error)
	// Skills lists the skill catalogue.
	Skills(ctx context.Context) ([]Skill, error)

	// Evidence returns all evidence for (person, skill) ordered by time ascending.
	Evidence(ctx context.Context, personID, skill string) ([]Evidence, error)
	// EvidenceForPersons returns all evidence of the given persons keyed by person id.
	EvidenceForPersons(ctx context.Context, personIDs []string) (map[string][]Evidence, error)

	// CollaborationEdges returns edges with both ends in personIDs.
	// A nil personIDs returns the whole graph.
	CollaborationEdges(ctx context.Context, personIDs []string) ([]CollaborationEdge, error)

	// Availability returns hours for the ISO week slot (e.g. "2025-W14").
	// ok is false when no record exists.
	Availability(ctx context.Context, personID, week string) (hours float64, ok bool, err error)

	// ManualConstraints returns constraints touching any of personIDs.
	ManualConstraints(ctx context.Context, personIDs []string) ([]ManualConstraint, error)
}

// SkillLevelRecorder persists a snapshot of computed levels. The core never
// reads the snapshot back as ground truth.
type SkillLevelRecorder interface {
	RecordSkillLevels(ctx context.Context, levels []SkillLevelRecord) error
}

// SkillLevelRecord is one row of a computed level snapshot.
type SkillLevelRecord struct {
	PersonID   string    `json:"person_id"`
	Skill      string    `json:"skill"`
	Level      float64   `json:"level"`
	Frequency  int       `json:"frequency"`
	ComputedAt time.Time `json:"computed_at"`
}
