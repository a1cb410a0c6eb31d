package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// reset clears package state between tests.
func reset(t *testing.T) {
	t.Helper()
	CloseAll()
	CloseAudit()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
	logLevel = LevelDebug
	auditLogger = nil
	t.Cleanup(func() {
		CloseAll()
		CloseAudit()
		config = loggingConfig{}
		logsDir = ""
	})
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".chimera")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, ".chimera", "logs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func hasFile(names []string, suffix string) bool {
	for _, n := range names {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

// TestAllCategoriesLog checks every category writes a file in debug mode.
func TestAllCategoriesLog(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Fatal("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryPerformance, CategoryStore, CategoryCache, CategoryAPI,
		CategoryScoring, CategoryLinchpin, CategoryMission, CategoryPolicy, CategoryFormation,
	}
	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		l := Get(cat)
		l.Debug("debug for %s", cat)
		l.Error("error for %s", cat)
	}

	Store("convenience store log")
	Cache("convenience cache log")
	Linchpin("convenience linchpin log")
	Formation("convenience formation log")
	Boot("engines ready")
	BootWarn("dataset mode")
	FormationDebug("dossier assembled")
	FormationWarn("assumed availability")

	CloseAll()
	names := logFiles(t, tempDir)
	for _, cat := range categories {
		if !hasFile(names, "_"+string(cat)+".log") {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled checks nothing is written in production mode.
func TestDebugModeDisabled(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": false, "categories": {"store": true}}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled")
	}
	if IsCategoryEnabled(CategoryStore) {
		t.Error("store should be disabled when debug_mode=false")
	}

	Store("should not be logged")
	Get(CategoryFormation).Error("should not be logged")
	Audit().FormationStart("balanced", 3, []string{"Go"})
	CloseAll()

	if names := logFiles(t, tempDir); len(names) > 0 {
		t.Errorf("Expected no log files in production mode, found %v", names)
	}
}

func TestMissingConfigIsProductionMode(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode off without a config file")
	}
	if err := Initialize(""); err == nil {
		t.Error("Expected an error for an empty workspace")
	}
}

// TestCategoryToggle checks per-category switches.
func TestCategoryToggle(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true,
		"categories": {"store": true, "cache": false, "policy": false}}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	if !IsCategoryEnabled(CategoryStore) {
		t.Error("store should be enabled")
	}
	if IsCategoryEnabled(CategoryCache) || IsCategoryEnabled(CategoryPolicy) {
		t.Error("cache and policy should be disabled")
	}
	if !IsCategoryEnabled(CategoryFormation) {
		t.Error("formation (not in config) should default to enabled")
	}

	Store("logged")
	Cache("not logged")
	Policy("not logged")
	Formation("logged")
	CloseAll()

	names := logFiles(t, tempDir)
	if !hasFile(names, "_store.log") || !hasFile(names, "_formation.log") {
		t.Errorf("Expected store and formation logs, got %v", names)
	}
	if hasFile(names, "_cache.log") || hasFile(names, "_policy.log") {
		t.Errorf("Disabled categories wrote files: %v", names)
	}
}

// TestInitializeWith drives logging from caller-supplied settings.
func TestInitializeWith(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()

	if err := InitializeWith(tempDir, true, "warn", "json", map[string]bool{"api": false}); err != nil {
		t.Fatalf("InitializeWith: %v", err)
	}
	if !IsJSONFormat() {
		t.Error("Expected JSON format")
	}
	if IsCategoryEnabled(CategoryAPI) {
		t.Error("api should be disabled")
	}

	Get(CategoryFormation).Info("below level")
	Get(CategoryFormation).Warn("kept %d", 1)
	AuditWithRequest("req-1").FormationStart("critical", 2, []string{"Go", "SQL"})
	CloseAll()
	CloseAudit()

	names := logFiles(t, tempDir)
	var formation string
	for _, n := range names {
		if strings.HasSuffix(n, "_formation.log") {
			formation = n
		}
	}
	if formation == "" {
		t.Fatalf("No formation log in %v", names)
	}
	data, err := os.ReadFile(filepath.Join(tempDir, ".chimera", "logs", formation))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "below level") {
		t.Error("info line written at warn level")
	}
	line := string(data)[strings.Index(string(data), "{"):]
	var entry StructuredLogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, line)
	}
	if entry.Level != "warn" || entry.Message != "kept 1" || entry.Category != "formation" {
		t.Errorf("unexpected entry %+v", entry)
	}

	if !hasFile(names, "_audit.log") {
		t.Fatalf("No audit log in %v", names)
	}
}

func TestRequestLogger(t *testing.T) {
	reset(t)
	r := WithRequestID(CategoryFormation, "abc").WithField("k", 3)
	if r.RequestID() != "abc" {
		t.Errorf("RequestID = %q", r.RequestID())
	}
	if got := r.formatMsg("hello %s", "x"); got != "[req:abc] hello x | map[k:3]" {
		t.Errorf("formatMsg = %q", got)
	}
	r.Info("no-op without initialization")
}

// TestTimerLogging checks the timing helper.
func TestTimerLogging(t *testing.T) {
	reset(t)
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true}}`)
	if err := Initialize(tempDir); err != nil {
		t.Fatal(err)
	}

	timer := StartTimer(CategoryLinchpin, "Analyze")
	time.Sleep(time.Millisecond)
	if elapsed := timer.Stop(); elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	slow := StartTimer(CategoryFormation, "FormTeams")
	time.Sleep(2 * time.Millisecond)
	slow.StopWithThreshold(time.Nanosecond)
	CloseAll()

	if !hasFile(logFiles(t, tempDir), "_performance.log") {
		t.Error("Expected a performance log for the slow operation")
	}
}
