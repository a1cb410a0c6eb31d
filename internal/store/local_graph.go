package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"smartchimera/internal/logging"
	"smartchimera/internal/types"
)

// =============================================================================
// COLLABORATION GRAPH
// =============================================================================

// normalizePair orders an undirected pair so each edge has one row.
func normalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// StoreCollaboration upserts an undirected weighted edge.
func (s *LocalStore) StoreCollaboration(ctx context.Context, edge types.CollaborationEdge) error {
	timer := logging.StartTimer(logging.CategoryStore, "StoreCollaboration")
	defer timer.Stop()

	if edge.A == "" || edge.B == "" || edge.A == edge.B {
		return fmt.Errorf("invalid collaboration edge %q-%q", edge.A, edge.B)
	}
	if math.IsNaN(edge.Weight) || math.IsInf(edge.Weight, 0) || edge.Weight < 0 {
		return fmt.Errorf("invalid collaboration weight: %v", edge.Weight)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := normalizePair(edge.A, edge.B)
	logging.StoreDebug("Storing collaboration: %s -- %s (weight=%.2f)", a, b, edge.Weight)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collaborations (person_a, person_b, weight, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(person_a, person_b) DO UPDATE SET weight = excluded.weight, last_seen = excluded.last_seen`,
		a, b, edge.Weight, unixOrZero(edge.LastSeen),
	)
	if err != nil {
		logging.StoreError("Failed to store collaboration: %v", err)
		return err
	}
	return nil
}

// CollaborationEdges returns edges with both endpoints in personIDs, or the
// whole graph for nil personIDs.
func (s *LocalStore) CollaborationEdges(ctx context.Context, personIDs []string) ([]types.CollaborationEdge, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CollaborationEdges")
	defer timer.Stop()

	query := "SELECT person_a, person_b, weight, last_seen FROM collaborations"
	var args []interface{}
	if personIDs != nil {
		if len(personIDs) == 0 {
			return nil, nil
		}
		ph := placeholders(len(personIDs))
		query += fmt.Sprintf(" WHERE person_a IN (%s) AND person_b IN (%s)", ph, ph)
		args = append(stringArgs(personIDs), stringArgs(personIDs)...)
	}
	query += " ORDER BY person_a, person_b"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.StoreError("Collaboration query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var edges []types.CollaborationEdge
	for rows.Next() {
		var e types.CollaborationEdge
		var lastSeen int64
		if err := rows.Scan(&e.A, &e.B, &e.Weight, &lastSeen); err != nil {
			logging.Get(logging.CategoryStore).Warn("Collaboration row scan failed: %v", err)
			continue
		}
		e.LastSeen = fromUnix(lastSeen)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Collaboration query returned %d edges", len(edges))
	return edges, nil
}

// =============================================================================
// MANUAL CONSTRAINTS
// =============================================================================

// StoreConstraint records a "must not co-staff" pair.
func (s *LocalStore) StoreConstraint(ctx context.Context, c types.ManualConstraint) error {
	if c.PersonA == "" || c.PersonB == "" || c.PersonA == c.PersonB {
		return fmt.Errorf("invalid manual constraint %q-%q", c.PersonA, c.PersonB)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := normalizePair(c.PersonA, c.PersonB)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO constraints (person_a, person_b, reason) VALUES (?, ?, ?)
		 ON CONFLICT(person_a, person_b) DO UPDATE SET reason = excluded.reason`,
		a, b, c.Reason,
	)
	if err != nil {
		logging.StoreError("Failed to store constraint: %v", err)
	}
	return err
}

// ManualConstraints returns constraints touching any of personIDs.
func (s *LocalStore) ManualConstraints(ctx context.Context, personIDs []string) ([]types.ManualConstraint, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ManualConstraints")
	defer timer.Stop()

	if len(personIDs) == 0 {
		return nil, nil
	}
	ph := placeholders(len(personIDs))
	query := fmt.Sprintf(
		"SELECT person_a, person_b, reason FROM constraints WHERE person_a IN (%s) OR person_b IN (%s) ORDER BY person_a, person_b",
		ph, ph)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, append(stringArgs(personIDs), stringArgs(personIDs)...)...)
	if err != nil {
		logging.StoreError("Constraint query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var out []types.ManualConstraint
	for rows.Next() {
		var c types.ManualConstraint
		if err := rows.Scan(&c.PersonA, &c.PersonB, &c.Reason); err != nil {
			logging.Get(logging.CategoryStore).Warn("Constraint row scan failed: %v", err)
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
