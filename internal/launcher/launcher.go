package launcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/modindex"
)

// Request describes one launch of a user's Python program.
type Request struct {
	InterpreterHome  string // provisioned standalone interpreter root, §6
	Version          PythonVersion
	Index            *modindex.Index
	Scripts          map[string]manifest.ScriptEntry
	InstalledScripts []string // absolute paths of every installed console/gui script, for forwarding
	SelfExe          string   // absolute path of this process's own executable
	Args             []string // user-facing arguments, program name excluded

	StoreRoot    string   // store root directory, embedded in the hook payload as sprawl_root
	PackageNames []string // installed package names, embedded as sprawl_packages
	ProjectDir   string   // project directory, if this launch is project-scoped
	Lockfile     string   // path to the lockfile this launch resolved against, if any
}

// Run drives the full sequence spec.md §4.7 describes: dynamic load,
// pre-init, configuration, initialization, hook injection, building the
// script-forwarding directory, and finally Py_Main. It returns the
// interpreter's own exit code on success.
func Run(req Request) (exitCode int32, err error) {
	interp, err := Load(req.InterpreterHome, req.Version)
	if err != nil {
		return 0, err
	}

	if err := interp.PreInitialize(); err != nil {
		return 0, err
	}

	if err := interp.Configure(req.InterpreterHome, req.SelfExe); err != nil {
		return 0, err
	}

	interp.Initialize()

	selfDir := filepath.Dir(req.SelfExe)

	hookSource, err := BuildHookSource(HookParams{
		Index:          req.Index,
		Scripts:        req.Scripts,
		StoreRoot:      req.StoreRoot,
		PackageNames:   req.PackageNames,
		ProjectDir:     req.ProjectDir,
		Lockfile:       req.Lockfile,
		SysExecutable:  req.SelfExe,
		SysPathRemoves: []string{selfDir},
	})
	if err != nil {
		return 0, fmt.Errorf("building hook source: %w", err)
	}

	if err := interp.RunSimpleString(hookSource); err != nil {
		return 0, fmt.Errorf("injecting import hook: %w", err)
	}

	forwardDir, err := BuildForwardingDir(os.TempDir(), req.InstalledScripts, req.Scripts, req.SelfExe, req.Version)
	if err != nil {
		return 0, err
	}

	if err := prependPath(forwardDir); err != nil {
		return 0, err
	}

	return interp.Main(req.SelfExe, req.Args)
}

func prependPath(dir string) error {
	existing := os.Getenv("PATH")
	if existing == "" {
		return os.Setenv("PATH", dir)
	}

	return os.Setenv("PATH", dir+string(os.PathListSeparator)+existing)
}
