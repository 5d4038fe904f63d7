package launcher_test

import (
	"strings"
	"testing"

	"github.com/sprawl-py/sprawl/internal/launcher"
	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/modindex"
)

func TestBuildHookSourceEmbedsPayloadAndRemovesSelfDir(t *testing.T) {
	idx := &modindex.Index{
		Modules: map[string]modindex.ModuleSpec{
			"demo": {InitFile: "/store/demo/1.0/py3-none-any/demo/__init__.py"},
		},
	}
	scripts := map[string]manifest.ScriptEntry{
		"demo-cli": {Module: "demo.cli", Function: "main"},
	}

	src, err := launcher.BuildHookSource(launcher.HookParams{
		Index:          idx,
		Scripts:        scripts,
		StoreRoot:      "/store",
		PackageNames:   []string{"demo"},
		SysExecutable:  "/usr/local/bin/sprawl",
		SysPathRemoves: []string{"/usr/local/bin"},
	})
	if err != nil {
		t.Fatalf("BuildHookSource() error: %v", err)
	}

	if !strings.Contains(src, "_SprawlFinder") {
		t.Error("expected finder class definition in generated source")
	}

	if !strings.Contains(src, "demo") {
		t.Error("expected module name to appear in embedded payload")
	}

	if !strings.Contains(src, "/usr/local/bin") {
		t.Error("expected self-dir to appear in embedded sys_path_removes payload")
	}

	if !strings.Contains(src, `sys.path.remove(_p)`) {
		t.Error("expected sys_path_removes loop to remove entries from sys.path")
	}
}

func TestBuildHookSourceEscapesSingleQuotes(t *testing.T) {
	idx := &modindex.Index{
		Modules: map[string]modindex.ModuleSpec{
			"o'brien": {InitFile: "/store/o'brien/__init__.py"},
		},
	}

	src, err := launcher.BuildHookSource(launcher.HookParams{Index: idx})
	if err != nil {
		t.Fatalf("BuildHookSource() error: %v", err)
	}

	start := strings.Index(src, "r'")
	end := strings.Index(src[start:], "'\n")
	literal := src[start+2 : start+end]

	if strings.Contains(literal, "'") {
		t.Errorf("raw string literal still contains an unescaped single quote: %q", literal)
	}
}
