package wheel

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EntryPoint is one parsed console_scripts or gui_scripts entry.
type EntryPoint struct {
	Name     string
	Module   string
	Function string
	GUI      bool
}

// parseEntryPoints reads entry_points.txt out of a dist-info directory
// already extracted to disk, returning both console_scripts and
// gui_scripts entries (spec.md §4.3 step 6).
func parseEntryPoints(path string) ([]EntryPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("opening entry_points.txt: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		entries []EntryPoint
		section string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "["):
			section = line
			continue
		case section != "[console_scripts]" && section != "[gui_scripts]":
			continue
		}

		name, target, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		target = strings.TrimSpace(target)

		if idx := strings.IndexByte(target, '['); idx >= 0 {
			target = strings.TrimSpace(target[:idx])
		}

		module, function, ok := strings.Cut(target, ":")
		if !ok {
			continue
		}

		entries = append(entries, EntryPoint{
			Name:     name,
			Module:   strings.TrimSpace(module),
			Function: strings.TrimSpace(function),
			GUI:      section == "[gui_scripts]",
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading entry_points.txt: %w", err)
	}

	return entries, nil
}

// generateUnixScript renders the stub pip-compatible launcher: a
// shebang line followed by a straight-line import-and-call.
func generateUnixScript(shebang string, ep EntryPoint) []byte {
	return []byte(fmt.Sprintf(`#!%s
import sys
from %s import %s
if __name__ == '__main__':
    sys.argv[0] = sys.argv[0].removesuffix('.exe')
    sys.exit(%s())
`, shebang, ep.Module, ep.Function, ep.Function))
}

// installEntryPoints generates console_scripts and gui_scripts
// launchers. On Unix this is a shebang'd Python stub; on Windows see
// writeLauncher for what the generated .exe file contains.
func (s *Service) installEntryPoints(distInfoDir string, dest Destination) ([]RecordEntry, []string, error) {
	entries, err := parseEntryPoints(filepath.Join(distInfoDir, "entry_points.txt"))
	if err != nil {
		return nil, nil, err
	}

	if len(entries) == 0 {
		return nil, nil, nil
	}

	if err := os.MkdirAll(dest.Scripts, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating scripts directory: %w", err)
	}

	var (
		records []RecordEntry
		written []string
	)

	for _, ep := range entries {
		scriptPath := filepath.Join(dest.Scripts, ep.Name)
		if runtime.GOOS == "windows" {
			scriptPath += launcherSuffix(ep.GUI)
		}

		if err := s.writeLauncher(scriptPath, dest.ShebangPython, ep); err != nil {
			return nil, nil, &ScriptLauncherError{Name: ep.Name, Detail: err.Error()}
		}

		hash, size, err := HashFile(scriptPath)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing script %s: %w", ep.Name, err)
		}

		records = append(records, RecordEntry{Path: recordRelPath(scriptPath, dest), Hash: hash, Size: size})
		written = append(written, scriptPath)
	}

	return records, written, nil
}

func launcherSuffix(gui bool) string {
	return ".exe"
}

// InstalledScripts returns the absolute paths of every console/gui
// script an already-installed package materialized, by locating its
// dist-info directory and re-parsing entry_points.txt the same way
// installEntryPoints did at install time. Used by the launcher to build
// its script-forwarding directory (spec.md §4.7) without needing the
// orchestrator to thread script paths through from install time.
func InstalledScripts(installDir string) ([]string, error) {
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", installDir, err)
	}

	var distInfoDir string

	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".dist-info") {
			distInfoDir = e.Name()

			break
		}
	}

	if distInfoDir == "" {
		return nil, nil
	}

	eps, err := parseEntryPoints(filepath.Join(installDir, distInfoDir, "entry_points.txt"))
	if err != nil {
		return nil, err
	}

	scripts := make([]string, 0, len(eps))

	for _, ep := range eps {
		name := ep.Name
		if runtime.GOOS == "windows" {
			name += launcherSuffix(ep.GUI)
		}

		scripts = append(scripts, filepath.Join(installDir, name))
	}

	return scripts, nil
}

// writeLauncher writes one entry-point launcher. On Unix it writes the
// importable shebang stub. On Windows it writes the plain-text
// __main__.py source (mainPyStub) to the .exe path: no launcher stub
// binary is prepended and the payload is not zipped, so the file is
// not a runnable executable; windowsLauncherKind is only logged.
func (s *Service) writeLauncher(scriptPath, shebang string, ep EntryPoint) error {
	if runtime.GOOS == "windows" {
		kind := windowsLauncherKind(ep.GUI)
		s.logger.Debug("windows launcher requires bundled stub", "kind", kind, "script", scriptPath)

		return os.WriteFile(scriptPath, mainPyStub(ep), 0o644)
	}

	return os.WriteFile(scriptPath, generateUnixScript(shebang, ep), 0o755)
}

func mainPyStub(ep EntryPoint) []byte {
	return []byte(fmt.Sprintf(`import sys
from %s import %s
if __name__ == '__main__':
    sys.exit(%s())
`, ep.Module, ep.Function, ep.Function))
}
