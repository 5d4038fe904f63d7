package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sprawl-py/sprawl/internal/launcher"
	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/markers"
	"github.com/sprawl-py/sprawl/internal/python"
	"github.com/sprawl-py/sprawl/internal/store"
	"github.com/sprawl-py/sprawl/internal/tags"
)

const (
	envPythonVersion = "SPRAWL_PYTHON_VERSION"
	envExecvePath    = "SPRAWL_EXECVE_PATH"
	envExecveRoot    = "SPRAWL_EXECVE_ROOT"
)

var defaultPythonVersion = launcher.PythonVersion{Major: 3, Minor: 12}

// projectFlags are the flags common to every subcommand that resolves a
// project manifest against a store.
type projectFlags struct {
	projectDir    string
	pythonVersion string
	extras        []string
	noDev         bool
}

// runtimeCtx bundles everything install/list/verify/run/exec need after
// resolving a project directory against its manifest and lockfile.
type runtimeCtx struct {
	storeRoot  string
	store      *store.Store
	projectDir string
	project    *manifest.Project
	lockfile   *manifest.Lockfile
	env        markers.Env
	hostTags   []tags.Triple
	pyVersion  launcher.PythonVersion
}

// loadRuntime reads the project manifest and lockfile rooted at
// flags.projectDir (defaulting to the working directory), opens the
// store, determines the host's compatible tags, and resolves the
// interpreter version from at most one of its three sources (see
// launcher.DetermineVersion).
func loadRuntime(ctx context.Context, flags projectFlags, fromPlusArg *launcher.PythonVersion, logger *slog.Logger) (*runtimeCtx, error) {
	projectDir := flags.projectDir
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}

		projectDir = cwd
	}

	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory %s: %w", projectDir, err)
	}

	project, err := loadProject(absProjectDir)
	if err != nil {
		return nil, err
	}

	lockfile, err := loadLockfile(absProjectDir)
	if err != nil {
		return nil, err
	}

	pyVersion, err := launcher.DetermineVersion(fromPlusArg, flags.pythonVersion, os.Getenv(envPythonVersion), defaultPythonVersion)
	if err != nil {
		return nil, fmt.Errorf("determining interpreter version: %w", err)
	}

	hostOS, err := tags.DetectOS(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("detecting host OS: %w", err)
	}

	hostArch, err := tags.DetectArch()
	if err != nil {
		return nil, fmt.Errorf("detecting host architecture: %w", err)
	}

	hostTags, err := tags.CompatibleTags(pyVersion.Major, pyVersion.Minor, hostOS, hostArch)
	if err != nil {
		return nil, fmt.Errorf("building compatible tags: %w", err)
	}

	if venv, ok := python.AmbientVirtualEnv(os.Getenv); ok {
		logger.Warn("VIRTUAL_ENV is set but sprawl does not use it; imports are resolved against the store instead", slog.String("VIRTUAL_ENV", venv))
	}

	storeRoot := store.DefaultRoot(os.Getenv)

	st, err := store.New(storeRoot, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &runtimeCtx{
		storeRoot:  storeRoot,
		store:      st,
		projectDir: absProjectDir,
		project:    project,
		lockfile:   lockfile,
		env:        buildMarkerEnv(pyVersion, flags.extras),
		hostTags:   hostTags,
		pyVersion:  pyVersion,
	}, nil
}

func loadProject(projectDir string) (*manifest.Project, error) {
	path := filepath.Join(projectDir, "pyproject.toml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	project, err := manifest.ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return project, nil
}

func loadLockfile(projectDir string) (*manifest.Lockfile, error) {
	path := filepath.Join(projectDir, "poetry.lock")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w (run 'sprawl resolve-git' or otherwise regenerate the lockfile)", path, err)
	}

	lockfile, err := manifest.ParseLockfile(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return lockfile, nil
}

func buildMarkerEnv(v launcher.PythonVersion, extras []string) markers.Env {
	sysPlatform, osName := hostMarkerNames()

	active := make(map[string]bool, len(extras))
	for _, e := range extras {
		active[markers.NormalizeName(e)] = true
	}

	return markers.Env{
		PythonVersion:      v.String(),
		PythonFullVersion:  fmt.Sprintf("%d.%d.0", v.Major, v.Minor),
		SysPlatform:        sysPlatform,
		OsName:             osName,
		PlatformMachine:    runtime.GOARCH,
		ImplementationName: "cpython",
		ActiveExtras:       active,
	}
}

func hostMarkerNames() (sysPlatform, osName string) {
	switch runtime.GOOS {
	case "darwin":
		return "darwin", "posix"
	case "windows":
		return "win32", "nt"
	default:
		return "linux", "posix"
	}
}
