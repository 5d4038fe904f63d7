package manifest_test

import (
	"testing"

	"github.com/sprawl-py/sprawl/internal/manifest"
)

const pyprojectToml = `
[tool.poetry]
name = "demo"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.9"
requests = "^2.0"
flask = { version = "^2.0", optional = true }

[tool.poetry.dev-dependencies]
pytest = "^7.0"

[tool.poetry.extras]
web = ["flask"]

[tool.poetry.scripts]
demo-cli = "demo.cli:main"
`

func TestParseProject(t *testing.T) {
	p, err := manifest.ParseProject([]byte(pyprojectToml))
	if err != nil {
		t.Fatalf("ParseProject() error: %v", err)
	}

	if _, ok := p.Dependencies["python"]; !ok {
		t.Error("expected python constraint present in Dependencies (graph evaluator strips it, not the reader)")
	}

	if dep, ok := p.Dependencies["requests"]; !ok || dep.Bare != "^2.0" {
		t.Errorf("Dependencies[requests] = %+v, ok=%v", dep, ok)
	}

	if len(p.DevDependencies) != 1 {
		t.Fatalf("len(DevDependencies) = %d, want 1", len(p.DevDependencies))
	}

	if got := p.Extras["web"]; len(got) != 1 || got[0] != "flask" {
		t.Errorf("Extras[web] = %v", got)
	}

	script, ok := p.Scripts["demo-cli"]
	if !ok {
		t.Fatal("missing demo-cli script")
	}

	if script.Module != "demo.cli" || script.Function != "main" {
		t.Errorf("script = %+v", script)
	}
}

func TestParseProjectRejectsBadScript(t *testing.T) {
	const bad = `
[tool.poetry.scripts]
demo-cli = "demo.cli.main"
`
	if _, err := manifest.ParseProject([]byte(bad)); err == nil {
		t.Fatal("expected error for entry point missing ':'")
	}
}
