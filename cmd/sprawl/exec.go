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
	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/provision"
	"github.com/sprawl-py/sprawl/internal/wheel"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "exec <script> [args...]",
		Short:              "Run one installed entry-point script by name",
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), projectFlags{}, args[0], args[1:])
		},
	}

	return cmd
}

// runExec is the "secondary mode" spec.md §3 describes: dispatch to
// one named entry-point, either a manifest root script (run in-process,
// the way `python -c` runs a snippet inside the already-loaded
// interpreter) or an installed package's console/gui script (replaced
// into via the platform's native program-replacement call, since the
// script file is already a self-contained launcher on disk).
func runExec(ctx context.Context, flags projectFlags, name string, args []string) error {
	logger := newLogger(false)

	rt, err := loadRuntime(ctx, flags, nil, logger)
	if err != nil {
		return err
	}

	set, err := graph.Evaluate(rt.project, rt.lockfile, flags.extras, flags.noDev, rt.env)
	if err != nil {
		return fmt.Errorf("evaluating dependency graph: %w", err)
	}

	if entry, ok := set.Scripts[name]; ok {
		return execRootScript(ctx, rt, set, logger, entry, name, args)
	}

	existing, err := rt.store.Walk()
	if err != nil {
		return fmt.Errorf("walking store: %w", err)
	}

	installedPkgs, _ := selectInstalled(set.Specs, existing, rt.hostTags)

	for _, pkg := range installedPkgs {
		scripts, err := wheel.InstalledScripts(pkg.Path)
		if err != nil {
			return fmt.Errorf("listing scripts for %s: %w", pkg.Name, err)
		}

		for _, scriptPath := range scripts {
			if filepath.Base(scriptPath) == name {
				return execScriptFile(scriptPath, args)
			}
		}
	}

	return fmt.Errorf("no entry-point script named %q is installed", name)
}

// execRootScript runs name's manifest-declared module:function target
// in-process, by injecting the hook and handing the interpreter a
// "-c"-style snippet that imports the module and calls the function.
func execRootScript(ctx context.Context, rt *runtimeCtx, set *graph.InstallSet, logger *slog.Logger, entry manifest.ScriptEntry, name string, args []string) error {
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

	snippet := fmt.Sprintf("import sys\nfrom %s import %s\nsys.argv = [%q] + sys.argv[1:]\nsys.exit(%s())\n", entry.Module, entry.Function, name, entry.Function)

	packageNames := make([]string, len(installedPkgs))
	for i, pkg := range installedPkgs {
		packageNames[i] = pkg.Name
	}

	lockfilePath := ""
	if rt.lockfile != nil {
		lockfilePath = filepath.Join(rt.projectDir, "poetry.lock")
	}

	req := launcher.Request{
		InterpreterHome:  home,
		Version:          rt.pyVersion,
		Index:            index,
		Scripts:          set.Scripts,
		InstalledScripts: installedScripts,
		SelfExe:          selfExe,
		Args:             append([]string{"-c", snippet}, args...),
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

// execScriptFile hands off to scriptPath via the platform's native
// program-replacement primitive (see exec_unix.go/exec_windows.go).
func execScriptFile(scriptPath string, args []string) error {
	return replaceProcess(scriptPath, append([]string{scriptPath}, args...), os.Environ())
}
