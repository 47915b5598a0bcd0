package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindProjectRoot returns the closest directory at or above startDir that
// contains go.mod.
func FindProjectRoot(startDir string) (string, error) {
	return findUp(startDir, "go.mod")
}

// findUp walks from startDir towards the filesystem root and returns the
// first directory containing name.
func findUp(startDir, name string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in any parent directory", name)
		}
		dir = parent
	}
}
