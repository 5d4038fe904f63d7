package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprawl-py/sprawl/internal/wheel"
)

// ensureDirs creates every distinct destination directory a wheel
// install may write under, tolerating the common case where they all
// coincide (store mode writes everything under one temp directory).
func ensureDirs(dest wheel.Destination) error {
	seen := map[string]bool{}

	for _, dir := range []string{dest.SitePackages, dest.Scripts, dest.Data, dest.Headers} {
		if dir == "" || seen[dir] {
			continue
		}

		seen[dir] = true

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return nil
}

// atomicRename moves a fully-populated temp directory into its final
// store location with a single rename(2). If the final directory already
// exists it is left as is, and tempDir stays behind for a later
// Store.SweepTemp to remove.
func atomicRename(tempDir, finalDir string) error {
	if _, err := os.Stat(finalDir); err == nil {
		return nil // another process won the race and already installed it
	}

	if err := os.MkdirAll(filepath.Dir(finalDir), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", finalDir, err)
	}

	if err := os.Rename(tempDir, finalDir); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tempDir, finalDir, err)
	}

	return nil
}
