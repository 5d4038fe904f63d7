package launcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/modindex"
)

// finderPayload is the JSON shape handed to the embedded finder: the
// full module index (spec_paths) plus enough ambient context (store
// root, installed package names, project directory, lockfile path,
// sys.executable, and paths to strip from sys.path) that find_spec and
// the forwarded-script dispatch never need to shell back out to sprawl
// itself once injected (spec.md §6's hook payload shape).
type finderPayload struct {
	SprawlRoot     string                           `json:"sprawl_root"`
	SprawlPackages []string                         `json:"sprawl_packages"`
	SpecPaths      map[string]finderModule          `json:"spec_paths"`
	ProjectDir     string                           `json:"project_dir,omitempty"`
	PthFiles       []string                         `json:"pth_files"`
	Lockfile       string                           `json:"lockfile,omitempty"`
	RootScripts    map[string]manifest.ScriptEntry  `json:"root_scripts"`
	SysPathRemoves []string                         `json:"sys_path_removes"`
	SysExecutable  string                           `json:"sys_executable"`
}

type finderModule struct {
	InitFile             string   `json:"init_file,omitempty"`
	SubmoduleSearchPaths []string `json:"submodule_search_paths,omitempty"`
}

// HookParams gathers everything BuildHookSource needs to serialize into
// the injected finder's payload.
type HookParams struct {
	Index          *modindex.Index
	Scripts        map[string]manifest.ScriptEntry
	StoreRoot      string
	PackageNames   []string
	ProjectDir     string
	Lockfile       string
	SysExecutable  string
	SysPathRemoves []string
}

func buildPayload(p HookParams) finderPayload {
	specPaths := make(map[string]finderModule, len(p.Index.Modules))
	for name, spec := range p.Index.Modules {
		specPaths[name] = finderModule{InitFile: spec.InitFile, SubmoduleSearchPaths: spec.SubmoduleSearchPaths}
	}

	return finderPayload{
		SprawlRoot:     p.StoreRoot,
		SprawlPackages: p.PackageNames,
		SpecPaths:      specPaths,
		ProjectDir:     p.ProjectDir,
		PthFiles:       p.Index.PthFiles,
		Lockfile:       p.Lockfile,
		RootScripts:    p.Scripts,
		SysPathRemoves: p.SysPathRemoves,
		SysExecutable:  p.SysExecutable,
	}
}

// finderSource is the meta-path-finder class injected into the
// interpreter. It answers find_spec purely out of the payload dict, so
// import resolution never touches the filesystem hierarchy sprawl
// itself walked to build the index.
const finderSource = `
import importlib.abc
import importlib.util
import sys


class _SprawlFinder(importlib.abc.MetaPathFinder):
    _singleton = None

    def __init__(self, payload):
        self.sprawl_root = payload["sprawl_root"]
        self.sprawl_packages = payload["sprawl_packages"]
        self._spec_paths = payload["spec_paths"]
        self.project_dir = payload.get("project_dir")
        self.pth_files = payload["pth_files"]
        self.lockfile = payload.get("lockfile")
        self.root_scripts = payload["root_scripts"]
        self.sys_executable = payload["sys_executable"]

    @classmethod
    def get_singleton(cls):
        return cls._singleton

    @classmethod
    def activate(cls, payload):
        finder = cls(payload)
        cls._singleton = finder
        if finder not in sys.meta_path:
            sys.meta_path.insert(0, finder)
        return finder

    def find_spec(self, fullname, path, target=None):
        entry = self._spec_paths.get(fullname)
        if entry is None:
            return None

        init_file = entry.get("init_file") or None
        search_paths = entry.get("submodule_search_paths") or []

        spec = importlib.util.spec_from_file_location(
            fullname,
            init_file,
            submodule_search_locations=search_paths or None,
        )
        return spec
`

// BuildHookSource synthesizes the Python source injected via the
// interpreter's simple-run-string entry point: the finder class above,
// a singleton activation call fed the JSON payload (single quotes
// escaped since the payload is embedded inside a single-quoted raw
// string literal), and removal of every path in p.SysPathRemoves from
// sys.path (spec.md §4.7 step "Hook injection").
func BuildHookSource(p HookParams) (string, error) {
	payload := buildPayload(p)

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling finder payload: %w", err)
	}

	// Escape single quotes to their JSON unicode-escape form so none can
	// terminate the raw string literal the payload is embedded in below;
	// json.loads reverses the escape when the source runs.
	escaped := strings.ReplaceAll(string(data), "'", `\u0027`)

	var b strings.Builder

	b.WriteString(finderSource)
	b.WriteString("\n_payload_json = r'")
	b.WriteString(escaped)
	b.WriteString("'\n")
	b.WriteString("import json as _json\n")
	b.WriteString("_sprawl_payload = _json.loads(_payload_json)\n")
	b.WriteString("_SprawlFinder.activate(_sprawl_payload)\n")
	b.WriteString("for _p in _sprawl_payload[\"sys_path_removes\"]:\n")
	b.WriteString("    try:\n")
	b.WriteString("        sys.path.remove(_p)\n")
	b.WriteString("    except ValueError:\n")
	b.WriteString("        pass\n")

	return b.String(), nil
}
