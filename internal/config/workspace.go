package config

import (
	"os"
	"path/filepath"
)

// WorkspaceDir is the per-workspace state directory (config, logs, database).
const WorkspaceDir = ".chimera"

// FindWorkspaceRoot walks up from start to the nearest directory holding a
// .chimera directory, then falls back to the nearest go.mod, then to start.
func FindWorkspaceRoot(start string) string {
	if start == "" {
		if wd, err := os.Getwd(); err == nil {
			start = wd
		}
	}
	for _, marker := range []string{WorkspaceDir, "go.mod"} {
		if dir, ok := walkUp(start, marker); ok {
			return dir
		}
	}
	return start
}

func walkUp(dir, marker string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// DefaultConfigPath returns <workspace>/.chimera/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(FindWorkspaceRoot(""), WorkspaceDir, "config.yaml")
}
