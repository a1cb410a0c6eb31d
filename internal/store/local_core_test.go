package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smartchimera/internal/types"
)

func hoursPtr(h float64) *float64 { return &h }

// sampleDataset is a four-person graph: p1-p2-p3 path plus an isolated p4.
func sampleDataset() *Dataset {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Dataset{
		Persons: []PersonRecord{
			{ID: "p1", Name: "Ana", Role: "senior", Availability: map[string]float64{"2025-W10": 30}},
			{ID: "p2", Name: "Bruno", DefaultHours: hoursPtr(20)},
			{ID: "p3", Name: "Carla"},
			{ID: "p4", Name: "Dario"},
		},
		Skills: []SkillRecord{{Name: "Python", Family: "language"}, {Name: "Docker", Family: "infra"}},
		Evidence: []EvidenceRecord{
			{Person: "p1", Skill: "Python", Source: "github", Timestamp: ts, Impact: "high", Validated: true, ValidatedBy: "p2"},
			{Person: "p1", Skill: "Python", Source: "jira", Timestamp: ts.Add(-48 * time.Hour), Impact: "low"},
			{Person: "p2", Skill: "Docker", Source: "github", Timestamp: ts, Impact: "medium"},
			{Person: "p3", Skill: "Kubernetes", Source: "github", Timestamp: ts, Impact: "high", URL: "https://example.invalid/pr/1"},
		},
		Collaborations: []CollaborationRecord{
			{A: "p2", B: "p1", Weight: 3, LastSeen: ts},
			{A: "p2", B: "p3", Weight: 1},
		},
		Constraints: []ConstraintRecord{{A: "p3", B: "p1", Reason: "HR"}},
	}
}

func newTestStore(t *testing.T, driver string) *LocalStore {
	t.Helper()
	st, err := NewLocalStore(driver, ":memory:")
	if err != nil {
		t.Fatalf("Failed to create local store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.ImportDataset(context.Background(), sampleDataset()); err != nil {
		t.Fatalf("ImportDataset: %v", err)
	}
	return st
}

func TestNewLocalStore(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			store, err := NewLocalStore(driver, ":memory:")
			if err != nil {
				t.Fatalf("Failed to create local store: %v", err)
			}
			defer store.Close()

			if store.GetDB() == nil {
				t.Fatal("GetDB returned nil")
			}
			if store.Driver() != driver {
				t.Errorf("Driver() = %q, want %q", store.Driver(), driver)
			}

			stats, err := store.GetStats()
			if err != nil {
				t.Fatalf("Failed to get stats: %v", err)
			}
			for _, table := range []string{"persons", "evidence", "collaborations", "constraints", "skill_levels"} {
				if _, ok := stats[table]; !ok {
					t.Errorf("Stats missing table: %s", table)
				}
			}
			if v := GetSchemaVersion(store.GetDB()); v != CurrentSchemaVersion {
				t.Errorf("schema version = %d, want %d", v, CurrentSchemaVersion)
			}
		})
	}
}

func TestNewLocalStore_RejectsUnknownDriver(t *testing.T) {
	if _, err := NewLocalStore("postgres", ":memory:"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNewLocalStore_FileReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evidence.db")
	st, err := NewLocalStore(DriverPureGo, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.ImportDataset(context.Background(), sampleDataset()); err != nil {
		t.Fatalf("import: %v", err)
	}
	st.Close()

	st, err = NewLocalStore(DriverPureGo, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	persons, err := st.Persons(context.Background())
	if err != nil {
		t.Fatalf("Persons: %v", err)
	}
	if len(persons) != 4 {
		t.Errorf("got %d persons after reopen, want 4", len(persons))
	}
}

func TestLocalStore_EvidenceRoundTrip(t *testing.T) {
	st := newTestStore(t, DriverCGO)
	ctx := context.Background()

	ev, err := st.Evidence(ctx, "p1", "Python")
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if len(ev) != 2 {
		t.Fatalf("got %d items, want 2", len(ev))
	}
	if !ev[0].Timestamp.Before(ev[1].Timestamp) {
		t.Error("evidence should be ordered by time ascending")
	}
	if ev[1].Impact != types.ImpactHigh || !ev[1].Validated || ev[1].ValidatedBy != "p2" {
		t.Errorf("unexpected newest item: %+v", ev[1])
	}

	bulk, err := st.EvidenceForPersons(ctx, []string{"p1", "p3", "p4"})
	if err != nil {
		t.Fatalf("EvidenceForPersons: %v", err)
	}
	if len(bulk["p1"]) != 2 || len(bulk["p3"]) != 1 || len(bulk["p4"]) != 0 {
		t.Errorf("unexpected bulk shape: %v", bulk)
	}
	if bulk["p3"][0].URL == "" {
		t.Error("url column should round trip")
	}
}

func TestLocalStore_PersonsWithSkillsAndCatalogue(t *testing.T) {
	st := newTestStore(t, DriverPureGo)
	ctx := context.Background()

	persons, err := st.PersonsWithSkills(ctx, []string{"Docker", "Kubernetes"})
	if err != nil {
		t.Fatalf("PersonsWithSkills: %v", err)
	}
	if len(persons) != 2 || persons[0].ID != "p2" || persons[1].ID != "p3" {
		t.Errorf("got %+v", persons)
	}

	skills, err := st.Skills(ctx)
	if err != nil {
		t.Fatalf("Skills: %v", err)
	}
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	want := []string{"Docker", "Kubernetes", "Python"}
	if len(names) != len(want) {
		t.Fatalf("skills = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("skills[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLocalStore_Availability(t *testing.T) {
	st := newTestStore(t, DriverCGO)
	ctx := context.Background()

	tests := []struct {
		person string
		week   string
		want   float64
		ok     bool
	}{
		{"p1", "2025-W10", 30, true},
		{"p1", "2025-W11", 0, false},
		{"p2", "2025-W11", 20, true},
		{"p3", "2025-W10", 0, false},
		{"ghost", "2025-W10", 0, false},
	}
	for _, tt := range tests {
		got, ok, err := st.Availability(ctx, tt.person, tt.week)
		if err != nil {
			t.Fatalf("Availability(%s): %v", tt.person, err)
		}
		if got != tt.want || ok != tt.ok {
			t.Errorf("Availability(%s, %s) = (%v, %v), want (%v, %v)", tt.person, tt.week, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLocalStore_RecordSkillLevels(t *testing.T) {
	st := newTestStore(t, DriverCGO)
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	levels := []types.SkillLevelRecord{
		{PersonID: "p1", Skill: "Python", Level: 4.5, Frequency: 2, ComputedAt: now},
		{PersonID: "p2", Skill: "Docker", Level: 2.4, Frequency: 1, ComputedAt: now},
	}
	if err := st.RecordSkillLevels(ctx, levels); err != nil {
		t.Fatalf("RecordSkillLevels: %v", err)
	}
	levels[0].Level = 4.0
	if err := st.RecordSkillLevels(ctx, levels[:1]); err != nil {
		t.Fatalf("RecordSkillLevels (update): %v", err)
	}

	got, err := st.SkillLevels(ctx)
	if err != nil {
		t.Fatalf("SkillLevels: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Level != 4.0 || !got[0].ComputedAt.Equal(now) {
		t.Errorf("upsert not applied: %+v", got[0])
	}
}

func TestImportDataset_RejectsDanglingReferences(t *testing.T) {
	st, err := NewLocalStore(DriverCGO, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ds := sampleDataset()
	ds.Evidence = append(ds.Evidence, EvidenceRecord{Person: "ghost", Skill: "Go"})
	if err := st.ImportDataset(context.Background(), ds); err == nil {
		t.Fatal("expected validation error")
	}
	stats, _ := st.GetStats()
	if stats["persons"] != 0 {
		t.Error("failed import must not write anything")
	}
}
