package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"smartchimera/internal/logging"
	"smartchimera/internal/types"
)

// =============================================================================
// PERSONS & SKILLS
// =============================================================================

// StorePerson upserts a person row.
func (s *LocalStore) StorePerson(ctx context.Context, p PersonRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storePerson(ctx, s.db, p)
}

func storePerson(ctx context.Context, db execer, p PersonRecord) error {
	if p.ID == "" {
		return fmt.Errorf("person id required")
	}
	var hours interface{}
	if p.DefaultHours != nil {
		hours = *p.DefaultHours
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO persons (id, name, role, default_hours) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, default_hours = excluded.default_hours`,
		p.ID, p.Name, p.Role, hours,
	); err != nil {
		return fmt.Errorf("store person %s: %w", p.ID, err)
	}
	for week, h := range p.Availability {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO availability (person_id, week, hours) VALUES (?, ?, ?)
			 ON CONFLICT(person_id, week) DO UPDATE SET hours = excluded.hours`,
			p.ID, week, h,
		); err != nil {
			return fmt.Errorf("store availability %s/%s: %w", p.ID, week, err)
		}
	}
	return nil
}

func (s *LocalStore) Persons(ctx context.Context) ([]types.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPersons(ctx, "SELECT id, name, role FROM persons ORDER BY id")
}

func (s *LocalStore) PersonsWithSkills(ctx context.Context, skills []string) ([]types.Person, error) {
	if len(skills) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, name, role FROM persons WHERE id IN (
			SELECT DISTINCT person_id FROM evidence WHERE lower(skill) IN (%s)
		) ORDER BY id`, placeholders(len(skills)))

	s.mu.RLock()
	defer s.mu.RUnlock()
	lowered := make([]string, len(skills))
	for i, sk := range skills {
		lowered[i] = strings.ToLower(sk)
	}
	return s.queryPersons(ctx, query, stringArgs(lowered)...)
}

func (s *LocalStore) queryPersons(ctx context.Context, query string, args ...interface{}) ([]types.Person, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.StoreError("Person query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []types.Person
	for rows.Next() {
		var p types.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Role); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StoreSkill upserts a catalogue entry.
func (s *LocalStore) StoreSkill(ctx context.Context, sk types.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSkill(ctx, s.db, sk)
}

func storeSkill(ctx context.Context, db execer, sk types.Skill) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO skills (name, family) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET family = excluded.family`,
		sk.Name, sk.Family)
	return err
}

// Skills lists catalogue skills plus any skill seen only in evidence.
func (s *LocalStore) Skills(ctx context.Context) ([]types.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, family FROM skills
		UNION
		SELECT DISTINCT skill, '' FROM evidence WHERE skill NOT IN (SELECT name FROM skills)
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Skill
	for rows.Next() {
		var sk types.Skill
		if err := rows.Scan(&sk.Name, &sk.Family); err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// =============================================================================
// EVIDENCE
// =============================================================================

// AppendEvidence inserts one evidence item. Evidence is never updated.
func (s *LocalStore) AppendEvidence(ctx context.Context, e types.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvidence(ctx, s.db, e)
}

func appendEvidence(ctx context.Context, db execer, e types.Evidence) error {
	if e.PersonID == "" || e.Skill == "" {
		return fmt.Errorf("evidence requires person and skill")
	}
	validated := 0
	if e.Validated {
		validated = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO evidence (ext_id, person_id, skill, source, ts, impact, validated, validated_by, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PersonID, e.Skill, e.Source, e.Timestamp.Unix(), string(e.Impact), validated, e.ValidatedBy, e.URL,
	)
	return err
}

const evidenceColumns = "ext_id, person_id, skill, source, ts, impact, validated, validated_by, url"

func scanEvidence(rows *sql.Rows) (types.Evidence, error) {
	var e types.Evidence
	var ts int64
	var impact string
	var validated int
	if err := rows.Scan(&e.ID, &e.PersonID, &e.Skill, &e.Source, &ts, &impact, &validated, &e.ValidatedBy, &e.URL); err != nil {
		return e, err
	}
	e.Timestamp = fromUnix(ts)
	e.Impact = types.ParseImpact(impact)
	e.Validated = validated != 0
	return e, nil
}

// Evidence returns the (person, skill) evidence ordered by time.
func (s *LocalStore) Evidence(ctx context.Context, personID, skill string) ([]types.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+evidenceColumns+" FROM evidence WHERE person_id = ? AND skill = ? ORDER BY ts, id",
		personID, skill)
	if err != nil {
		logging.StoreError("Evidence query failed for %s/%s: %v", personID, skill, err)
		return nil, err
	}
	defer rows.Close()

	var out []types.Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EvidenceForPersons loads all evidence of personIDs in one query.
func (s *LocalStore) EvidenceForPersons(ctx context.Context, personIDs []string) (map[string][]types.Evidence, error) {
	timer := logging.StartTimer(logging.CategoryStore, "EvidenceForPersons")
	defer timer.Stop()

	out := make(map[string][]types.Evidence, len(personIDs))
	if len(personIDs) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM evidence WHERE person_id IN (%s) ORDER BY person_id, ts, id",
			evidenceColumns, placeholders(len(personIDs))),
		stringArgs(personIDs)...)
	if err != nil {
		logging.StoreError("Bulk evidence query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out[e.PersonID] = append(out[e.PersonID], e)
		n++
	}
	logging.StoreDebug("Loaded %d evidence items for %d persons", n, len(personIDs))
	return out, rows.Err()
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability falls back to the person's default_hours when the week has no row.
func (s *LocalStore) Availability(ctx context.Context, personID, week string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours float64
	err := s.db.QueryRowContext(ctx,
		"SELECT hours FROM availability WHERE person_id = ? AND week = ?", personID, week).Scan(&hours)
	if err == nil {
		return hours, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, err
	}

	var def sql.NullFloat64
	err = s.db.QueryRowContext(ctx, "SELECT default_hours FROM persons WHERE id = ?", personID).Scan(&def)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !def.Valid {
		return 0, false, nil
	}
	return def.Float64, true, nil
}

// =============================================================================
// SKILL LEVEL SNAPSHOT
// =============================================================================

// RecordSkillLevels replaces the snapshot rows for the given pairs.
func (s *LocalStore) RecordSkillLevels(ctx context.Context, levels []types.SkillLevelRecord) error {
	timer := logging.StartTimer(logging.CategoryStore, "RecordSkillLevels")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO skill_levels (person_id, skill, level, frequency, computed_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(person_id, skill) DO UPDATE SET level = excluded.level, frequency = excluded.frequency, computed_at = excluded.computed_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range levels {
		if _, err := stmt.ExecContext(ctx, l.PersonID, l.Skill, l.Level, l.Frequency, l.ComputedAt.Unix()); err != nil {
			return fmt.Errorf("record level %s/%s: %w", l.PersonID, l.Skill, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Recorded %d skill levels", len(levels))
	return nil
}

// SkillLevels reads the snapshot back for reporting.
func (s *LocalStore) SkillLevels(ctx context.Context) ([]types.SkillLevelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT person_id, skill, level, frequency, computed_at FROM skill_levels ORDER BY person_id, skill")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SkillLevelRecord
	for rows.Next() {
		var r types.SkillLevelRecord
		var at int64
		if err := rows.Scan(&r.PersonID, &r.Skill, &r.Level, &r.Frequency, &at); err != nil {
			return nil, err
		}
		r.ComputedAt = fromUnix(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// DATASET IMPORT
// =============================================================================

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ImportDataset writes ds in one transaction. Persons and skills are
// upserted; evidence is appended.
func (s *LocalStore) ImportDataset(ctx context.Context, ds *Dataset) error {
	timer := logging.StartTimer(logging.CategoryStore, "ImportDataset")
	defer timer.StopWithInfo()

	if err := ds.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range ds.Persons {
		if err := storePerson(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, sk := range ds.Skills {
		if err := storeSkill(ctx, tx, types.Skill{Name: sk.Name, Family: sk.Family}); err != nil {
			return fmt.Errorf("store skill %s: %w", sk.Name, err)
		}
	}
	for _, r := range ds.Evidence {
		if err := appendEvidence(ctx, tx, r.toEvidence()); err != nil {
			return fmt.Errorf("append evidence for %s: %w", r.Person, err)
		}
	}
	for _, c := range ds.Collaborations {
		a, b := normalizePair(c.A, c.B)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collaborations (person_a, person_b, weight, last_seen) VALUES (?, ?, ?, ?)
			 ON CONFLICT(person_a, person_b) DO UPDATE SET weight = excluded.weight, last_seen = excluded.last_seen`,
			a, b, c.Weight, unixOrZero(c.LastSeen)); err != nil {
			return fmt.Errorf("store collaboration %s-%s: %w", a, b, err)
		}
	}
	for _, c := range ds.Constraints {
		a, b := normalizePair(c.A, c.B)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO constraints (person_a, person_b, reason) VALUES (?, ?, ?)
			 ON CONFLICT(person_a, person_b) DO UPDATE SET reason = excluded.reason`,
			a, b, c.Reason); err != nil {
			return fmt.Errorf("store constraint %s-%s: %w", a, b, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("Imported dataset: persons=%d evidence=%d edges=%d constraints=%d",
		len(ds.Persons), len(ds.Evidence), len(ds.Collaborations), len(ds.Constraints))
	return nil
}

var (
	_ types.EvidenceGraph      = (*LocalStore)(nil)
	_ types.SkillLevelRecorder = (*LocalStore)(nil)
)
