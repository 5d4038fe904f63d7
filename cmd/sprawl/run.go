package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/launcher"
	"github.com/sprawl-py/sprawl/internal/markers"
	"github.com/sprawl-py/sprawl/internal/modindex"
	"github.com/sprawl-py/sprawl/internal/provision"
	"github.com/sprawl-py/sprawl/internal/store"
	"github.com/sprawl-py/sprawl/internal/tags"
	"github.com/sprawl-py/sprawl/internal/wheel"
)

// newRunCmd's flag parsing is disabled: everything after "run" belongs
// to the user's program, not to sprawl itself (project dir is always
// the working directory; use the top-level "+M.m" prefix to pin a
// version instead of a flag).
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run <program> [args...]",
		Short:              "Run a Python program against the project's installed store, with the import hook injected",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), projectFlags{}, nil, args)
		},
	}

	return cmd
}

// runRun resolves the project's install set against the store, builds
// the module index over exactly the packages that set names, and hands
// off to the interpreter via launcher.Run, propagating its exit code
// (spec.md §4.7's "Main" step).
func runRun(ctx context.Context, flags projectFlags, fromPlusArg *launcher.PythonVersion, args []string) error {
	logger := newLogger(false)

	rt, err := loadRuntime(ctx, flags, fromPlusArg, logger)
	if err != nil {
		return err
	}

	set, err := graph.Evaluate(rt.project, rt.lockfile, flags.extras, flags.noDev, rt.env)
	if err != nil {
		return fmt.Errorf("evaluating dependency graph: %w", err)
	}

	existing, err := rt.store.Walk()
	if err != nil {
		return fmt.Errorf("walking store: %w", err)
	}

	installedPkgs, missing := selectInstalled(set.Specs, existing, rt.hostTags)
	if len(missing) > 0 {
		return fmt.Errorf("not installed in the store: %v (run 'sprawl install' first)", missing)
	}

	index, installedScripts, err := buildIndex(installedPkgs, logger)
	if err != nil {
		return err
	}

	provisioner := provision.CacheDir{Root: rt.storeRoot}

	_, home, err := provisioner.Provision(ctx, rt.pyVersion)
	if err != nil {
		return err
	}

	selfExe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable path: %w", err)
	}

	packageNames := make([]string, len(installedPkgs))
	for i, pkg := range installedPkgs {
		packageNames[i] = pkg.Name
	}

	lockfilePath := ""
	if rt.lockfile != nil {
		lockfilePath = filepath.Join(rt.projectDir, "poetry.lock")
	}

	if err := os.Setenv(envExecvePath, selfExe); err != nil {
		return fmt.Errorf("setting %s: %w", envExecvePath, err)
	}

	if err := os.Setenv(envExecveRoot, rt.storeRoot); err != nil {
		return fmt.Errorf("setting %s: %w", envExecveRoot, err)
	}

	req := launcher.Request{
		InterpreterHome:  home,
		Version:          rt.pyVersion,
		Index:            index,
		Scripts:          set.Scripts,
		InstalledScripts: installedScripts,
		SelfExe:          selfExe,
		Args:             args,
		StoreRoot:        rt.storeRoot,
		PackageNames:     packageNames,
		ProjectDir:       rt.projectDir,
		Lockfile:         lockfilePath,
	}

	exitCode, err := launcher.Run(req)
	if err != nil {
		return fmt.Errorf("running interpreter: %w", err)
	}

	os.Exit(int(exitCode))

	return nil
}

// selectInstalled resolves every spec in specs against existing store
// entries compatible with hostTags, mirroring orchestrator.partition's
// key scheme but reporting anything still missing as "name
// unique-version" strings rather than as the specs themselves.
func selectInstalled(specs []graph.RequestedSpec, existing []store.Installed, hostTags []tags.Triple) (present []store.Installed, missingNames []string) {
	compatible := map[string]bool{}
	for _, t := range hostTags {
		compatible[tags.CanonicalTagDir(t)] = true
	}

	byKey := map[string]store.Installed{}

	for _, e := range existing {
		if !compatible[e.Tag] {
			continue
		}

		byKey[e.Name+"@"+e.UniqueVersion] = e
	}

	for _, spec := range specs {
		uniqueVersion := spec.Version
		if spec.Source != "" {
			uniqueVersion = spec.Source
		}

		key := markers.NormalizeName(spec.Name) + "@" + uniqueVersion

		if installed, ok := byKey[key]; ok {
			present = append(present, installed)
		} else {
			missingNames = append(missingNames, spec.Name+" "+uniqueVersion)
		}
	}

	return present, missingNames
}

// buildIndex scans every installed package's store directory (its
// synthesized site-packages root, since store-mode installs flatten
// SitePackages/Scripts/Data/Headers into the same directory) into a
// module index, and collects each package's console/gui script paths
// for the launcher's script-forwarding directory.
func buildIndex(installedPkgs []store.Installed, logger *slog.Logger) (*modindex.Index, []string, error) {
	packages := make([]modindex.Installed, len(installedPkgs))

	var scripts []string

	for i, pkg := range installedPkgs {
		packages[i] = modindex.Installed{Name: pkg.Name, SitePackages: pkg.Path}

		pkgScripts, err := wheel.InstalledScripts(pkg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("listing scripts for %s: %w", pkg.Name, err)
		}

		scripts = append(scripts, pkgScripts...)
	}

	index, err := modindex.Build(packages, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building module index: %w", err)
	}

	return index, scripts, nil
}
