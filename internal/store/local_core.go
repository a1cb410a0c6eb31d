// Package store persists the evidence graph in SQLite and serves it to the
// engines through types.EvidenceGraph.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"smartchimera/internal/logging"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// LocalStore implements the evidence graph using SQLite.
//
// Tables:
//   - persons / skills: reference data
//   - evidence: append-only observations, timestamps as unix seconds
//   - availability: hours per (person, ISO week)
//   - collaborations: undirected weighted edges, stored with person_a < person_b
//   - constraints: manual "must not co-staff" pairs
//   - skill_levels: last computed level snapshot, reporting only
//
// Usage Example:
//
//	st, _ := store.NewLocalStore(store.DriverCGO, ".chimera/evidence.db")
//	defer st.Close()
//	ds, _ := store.LoadDataset("seed.yaml")
//	_ = st.ImportDataset(ctx, ds)
//	edges, _ := st.CollaborationEdges(ctx, nil)
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	driver string
}

// NewLocalStore opens (creating if needed) the database at path with the
// given driver. An empty driver selects DriverCGO.
func NewLocalStore(driver, path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if driver == "" {
		driver = DriverCGO
	}
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", driver, DriverCGO, DriverPureGo)
	}

	logging.Store("Initializing LocalStore at path: %s (driver=%s)", path, driver)

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path, driver: driver}
	if err := store.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	referenceTables := `
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		default_hours REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS skills (
		name TEXT PRIMARY KEY,
		family TEXT NOT NULL DEFAULT ''
	);
	`

	evidenceTable := `
	CREATE TABLE IF NOT EXISTS evidence (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ext_id TEXT NOT NULL DEFAULT '',
		person_id TEXT NOT NULL REFERENCES persons(id),
		skill TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL,
		impact TEXT NOT NULL DEFAULT 'medium',
		validated INTEGER NOT NULL DEFAULT 0,
		validated_by TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_evidence_person_skill ON evidence(person_id, skill, ts);
	CREATE INDEX IF NOT EXISTS idx_evidence_skill ON evidence(skill);
	`

	availabilityTable := `
	CREATE TABLE IF NOT EXISTS availability (
		person_id TEXT NOT NULL REFERENCES persons(id),
		week TEXT NOT NULL,
		hours REAL NOT NULL,
		PRIMARY KEY(person_id, week)
	);
	`

	graphTables := `
	CREATE TABLE IF NOT EXISTS collaborations (
		person_a TEXT NOT NULL REFERENCES persons(id),
		person_b TEXT NOT NULL REFERENCES persons(id),
		weight REAL NOT NULL DEFAULT 1.0,
		last_seen INTEGER NOT NULL DEFAULT 0,
		UNIQUE(person_a, person_b)
	);
	CREATE INDEX IF NOT EXISTS idx_collab_a ON collaborations(person_a);
	CREATE INDEX IF NOT EXISTS idx_collab_b ON collaborations(person_b);

	CREATE TABLE IF NOT EXISTS constraints (
		person_a TEXT NOT NULL,
		person_b TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		UNIQUE(person_a, person_b)
	);
	`

	snapshotTable := `
	CREATE TABLE IF NOT EXISTS skill_levels (
		person_id TEXT NOT NULL,
		skill TEXT NOT NULL,
		level REAL NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 0,
		computed_at INTEGER NOT NULL,
		PRIMARY KEY(person_id, skill)
	);
	`

	versionTable := `
	CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, ddl := range []string{referenceTables, evidenceTable, availabilityTable, graphTables, snapshotTable, versionTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Store("Closing LocalStore at %s", s.dbPath)
	return s.db.Close()
}

// GetDB exposes the underlying handle for maintenance commands.
func (s *LocalStore) GetDB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name in use.
func (s *LocalStore) Driver() string {
	return s.driver
}

// GetStats returns row counts per table.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"persons", "skills", "evidence", "availability", "collaborations", "constraints", "skill_levels"} {
		var count int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
