package graph_test

import (
	"testing"

	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/markers"
)

func names(specs []graph.RequestedSpec) []string {
	var out []string
	for _, s := range specs {
		out = append(out, s.Name)
	}

	return out
}

func containsAll(got []string, want ...string) bool {
	set := map[string]bool{}
	for _, g := range got {
		set[g] = true
	}

	for _, w := range want {
		if !set[w] {
			return false
		}
	}

	return true
}

// buildLockfile constructs a lockfile where B depends on C unconditionally
// and on D only under extra=="x", and C depends on E — the exact scenario
// spec.md §8 describes for extras-gated graph evaluation.
func buildLockfile() *manifest.Lockfile {
	raw := `
[[package]]
name = "A"
version = "1.0"

[[package]]
name = "B"
version = "1.0"

[package.dependencies]
C = "*"
D = { version = "*", markers = "extra == \"x\"" }

[[package]]
name = "C"
version = "1.0"

[package.dependencies]
E = "*"

[[package]]
name = "D"
version = "1.0"

[[package]]
name = "E"
version = "1.0"

[metadata]
lock-version = "2.0"
`
	lf, err := manifest.ParseLockfile([]byte(raw))
	if err != nil {
		panic(err)
	}

	return lf
}

func buildProject(withExtra bool) *manifest.Project {
	deps := map[string]manifest.Dependency{
		"A": {Bare: "*"},
	}

	if withExtra {
		deps["B"] = manifest.Dependency{Marker: "", Extras: []string{"x"}, Constraint: "*"}
	} else {
		deps["B"] = manifest.Dependency{Bare: "*"}
	}

	return &manifest.Project{
		Dependencies:    deps,
		DevDependencies: map[string]manifest.Dependency{},
		Extras:          map[string][]string{"x": {"D"}},
		Scripts:         map[string]manifest.ScriptEntry{},
	}
}

func TestEvaluateWithExtra(t *testing.T) {
	project := buildProject(true)
	lockfile := buildLockfile()

	set, err := graph.Evaluate(project, lockfile, []string{"x"}, true, markers.Env{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	got := names(set.Specs)
	if !containsAll(got, "A", "B", "C", "D", "E") {
		t.Errorf("Specs = %v, want to contain A,B,C,D,E", got)
	}
}

func TestEvaluateWithoutExtra(t *testing.T) {
	project := buildProject(false)
	lockfile := buildLockfile()

	set, err := graph.Evaluate(project, lockfile, nil, true, markers.Env{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	got := names(set.Specs)
	if !containsAll(got, "A", "B", "C", "E") {
		t.Errorf("Specs = %v, want to contain A,B,C,E", got)
	}

	for _, n := range got {
		if n == "D" {
			t.Errorf("Specs unexpectedly contains D when extra x is not selected: %v", got)
		}
	}
}

func TestEvaluateMissingLockfileEntryIsHardError(t *testing.T) {
	project := &manifest.Project{
		Dependencies: map[string]manifest.Dependency{"ghost": {Bare: "*"}},
	}
	lockfile := buildLockfile()

	_, err := graph.Evaluate(project, lockfile, nil, true, markers.Env{})
	if err == nil {
		t.Fatal("expected lockfile-outdated error for missing package")
	}
}

func TestEvaluateUnsafeRootToleratedWhenMissing(t *testing.T) {
	project := &manifest.Project{
		Dependencies: map[string]manifest.Dependency{"setuptools": {Bare: "*"}},
	}
	lockfile := buildLockfile()

	set, err := graph.Evaluate(project, lockfile, nil, true, markers.Env{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if !containsAll(names(set.Specs), "setuptools") {
		t.Errorf("expected setuptools tolerated in install set, got %v", set.Specs)
	}
}

func TestEvaluateUnknownExtraIsHardError(t *testing.T) {
	project := buildProject(true)
	lockfile := buildLockfile()

	_, err := graph.Evaluate(project, lockfile, []string{"does-not-exist"}, true, markers.Env{})
	if err == nil {
		t.Fatal("expected an error for an extra the project never declares")
	}

	var unknown *graph.UnknownExtraError
	if e, ok := err.(*graph.UnknownExtraError); !ok {
		t.Errorf("expected *graph.UnknownExtraError, got %T: %v", err, err)
	} else {
		unknown = e
	}

	if unknown != nil && unknown.Extra != "does-not-exist" {
		t.Errorf("UnknownExtraError.Extra = %q, want %q", unknown.Extra, "does-not-exist")
	}
}
