package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sprawl-py/sprawl/internal/manifest"
)

// BuildForwardingDir creates a temporary directory containing one
// forwarding entry per installed console/gui script plus one per root
// script in the manifest's scripts map, and, on Unix, symlinks named
// python/python<M>/python<M>.<m> back at selfExe. Every entry re-enters
// selfExe so that any subprocess launched via a script name (notebook
// kernels are the common case) recovers the import hook instead of
// running a bare system interpreter (spec.md §4.7's "Script-forwarding
// directory" step).
func BuildForwardingDir(baseDir string, installedScripts []string, rootScripts map[string]manifest.ScriptEntry, selfExe string, v PythonVersion) (string, error) {
	dir, err := os.MkdirTemp(baseDir, "sprawl-forward-")
	if err != nil {
		return "", fmt.Errorf("creating forwarding directory: %w", err)
	}

	for _, scriptPath := range installedScripts {
		name := filepath.Base(scriptPath)
		if err := forwardEntry(dir, name, scriptPath); err != nil {
			return "", err
		}
	}

	for name := range rootScripts {
		if err := forwardEntry(dir, name, selfExe); err != nil {
			return "", err
		}
	}

	pythonNames := []string{
		"python",
		fmt.Sprintf("python%d", v.Major),
		fmt.Sprintf("python%d.%d", v.Major, v.Minor),
	}

	for _, name := range pythonNames {
		if err := forwardEntry(dir, name, selfExe); err != nil {
			return "", err
		}
	}

	return dir, nil
}

// forwardEntry links name inside dir to target: a symlink on Unix, or a
// ".bat" stub that forwards %* to target on Windows (symlinks require
// elevation there).
func forwardEntry(dir, name, target string) error {
	if runtime.GOOS == "windows" {
		return writeForwardingBat(filepath.Join(dir, name+".bat"), target)
	}

	link := filepath.Join(dir, name)

	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing %s: %w", link, err)
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("symlinking %s -> %s: %w", link, target, err)
	}

	return nil
}

func writeForwardingBat(path, target string) error {
	content := fmt.Sprintf("@echo off\r\n\"%s\" %%*\r\n", target)

	return os.WriteFile(path, []byte(content), 0o755)
}
