package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"smartchimera/internal/guardian"
	"smartchimera/internal/linchpin"
	"smartchimera/internal/scoring"
	"smartchimera/internal/store"
)

// Config holds all SmartChimera configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Evidence graph backend
	Store StoreConfig `yaml:"store"`

	// Shared centrality cache
	Redis RedisConfig `yaml:"redis"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Engine tuning
	Scoring   scoring.Config  `yaml:"scoring"`
	Linchpin  linchpin.Config `yaml:"linchpin"`
	Formation guardian.Config `yaml:"formation"`

	// Rule and profile documents
	Policy   PolicyConfig   `yaml:"policy"`
	Missions MissionsConfig `yaml:"missions"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects the SQLite driver and file. Dataset, when set, serves
// the graph from a YAML file in memory instead of SQLite.
type StoreConfig struct {
	Driver       string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	DatabasePath string `yaml:"database_path"`
	Dataset      string `yaml:"dataset,omitempty"`
}

// RedisConfig configures the centrality cache. An empty URL keeps the cache in process.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Prefix     string `yaml:"prefix"`
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"` // in-process backend only
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
	RequestTimeout string   `yaml:"request_timeout"`
}

// PolicyConfig points at the rules document. An empty path uses the built-in rules.
type PolicyConfig struct {
	RulesPath     string `yaml:"rules_path"`
	EvidenceLimit int    `yaml:"evidence_limit"`
}

// MissionsConfig points at the mission profile document. An empty path uses
// the built-in profiles.
type MissionsConfig struct {
	ProfilesPath string `yaml:"profiles_path"`
}

// LoggingConfig drives internal/logging. Nothing is written outside debug
// mode; categories missing from the map are on.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"` // json, text
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "SmartChimera",
		Version: "0.3.0",

		Store: StoreConfig{
			Driver:       store.DriverCGO,
			DatabasePath: ".chimera/evidence.db",
		},

		Redis: RedisConfig{
			Prefix:     "chimera:centrality:",
			TTL:        "6h",
			MaxEntries: 64,
		},

		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:    "10s",
			WriteTimeout:   "30s",
			RequestTimeout: "20s",
		},

		Scoring:   scoring.DefaultConfig(),
		Linchpin:  linchpin.DefaultConfig(),
		Formation: guardian.DefaultConfig(),

		Policy: PolicyConfig{
			EvidenceLimit: 5,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CHIMERA_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if driver := os.Getenv("CHIMERA_DB_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if url := os.Getenv("CHIMERA_REDIS_URL"); url != "" {
		c.Redis.URL = url
	}
	if addr := os.Getenv("CHIMERA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("CHIMERA_PROFILES"); path != "" {
		c.Missions.ProfilesPath = path
	}
	if path := os.Getenv("CHIMERA_RULES"); path != "" {
		c.Policy.RulesPath = path
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetRedisTTL returns the cache TTL as a duration.
func (c *Config) GetRedisTTL() time.Duration {
	return parseDuration(c.Redis.TTL, 6*time.Hour)
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 30*time.Second)
}

// GetRequestTimeout bounds a single formation or scan.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 20*time.Second)
}

// ValidDrivers lists the supported SQLite drivers.
var ValidDrivers = []string{store.DriverCGO, store.DriverPureGo}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validDriver := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Store.Dataset == "" && strings.TrimSpace(c.Store.DatabasePath) == "" {
		return fmt.Errorf("store.database_path is required when no dataset is configured")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	for name, v := range map[string]string{
		"redis.ttl":              c.Redis.TTL,
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.write_timeout":   c.Server.WriteTimeout,
		"server.request_timeout": c.Server.RequestTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	if c.Policy.EvidenceLimit < 1 {
		return fmt.Errorf("policy.evidence_limit must be >= 1")
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Linchpin.Validate(); err != nil {
		return err
	}
	return c.Formation.Validate()
}
