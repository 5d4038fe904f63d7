// Package graph evaluates the transitive dependency/extras graph under
// environment markers, producing a flat, deduplicated install set
// (spec.md §4.4).
package graph

import (
	"fmt"
	"sort"

	"github.com/sprawl-py/sprawl/internal/manifest"
	"github.com/sprawl-py/sprawl/internal/markers"
)

// unsafeRoots is tolerated as missing from the lockfile: these
// bootstrap packages are assumed already present in any interpreter.
var unsafeRoots = map[string]bool{
	"setuptools": true,
	"distribute": true,
	"pip":        true,
	"wheel":      true,
}

// RequestedSpec is one resolved entry of an InstallSet.
type RequestedSpec struct {
	Name         string
	Version      string
	Source       string // VCS/url source, empty for index-sourced packages
	ActiveExtras []string
}

// InstallSet is the result of graph evaluation: a deduplicated,
// name-ordered list of specs plus the manifest's root scripts.
type InstallSet struct {
	Specs   []RequestedSpec
	Scripts map[string]manifest.ScriptEntry
}

// LockfileOutdatedError reports a root or transitive dependency with no
// matching lockfile package.
type LockfileOutdatedError struct {
	Name string
}

func (e *LockfileOutdatedError) Error() string {
	return fmt.Sprintf("lockfile outdated: %s not found in lockfile", e.Name)
}

// UnknownExtraError reports a selected extra that the project does not
// declare. The package names listed under a declared extra are not
// checked against the lockfile.
type UnknownExtraError struct {
	Extra string
}

func (e *UnknownExtraError) Error() string {
	return fmt.Sprintf("unknown extra %q: not declared by the project", e.Extra)
}

// queueEntry is one pending (name, extras) pair awaiting expansion.
type queueEntry struct {
	name   string
	extras map[string]bool
}

// Evaluate transforms (project, lockfile, selectedExtras, noDev, env)
// into an InstallSet, following spec.md §4.4's preparation/traversal/
// emission algorithm exactly.
func Evaluate(project *manifest.Project, lockfile *manifest.Lockfile, selectedExtras []string, noDev bool, env markers.Env) (*InstallSet, error) {
	selected := map[string]bool{}
	for _, e := range selectedExtras {
		selected[e] = true
	}

	if err := checkKnownExtras(project, selected); err != nil {
		return nil, err
	}

	roots, err := buildRootDependencies(project, noDev, selected)
	if err != nil {
		return nil, err
	}

	visited := map[string]map[string]bool{} // name -> active extras

	var queue []queueEntry

	for name, extras := range roots {
		queue = append(queue, queueEntry{name: name, extras: extras})
	}

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		normalized := markers.NormalizeName(entry.name)

		existing := visited[normalized]
		firstVisit := existing == nil
		delta := extrasNotIn(entry.extras, existing)

		if !firstVisit && len(delta) == 0 {
			continue // nothing new for this name; already fully expanded
		}

		merged := unionExtras(existing, entry.extras)
		visited[normalized] = merged

		pkg, ok := lockfile.PackageByName(entry.name)
		if !ok {
			if unsafeRoots[normalized] {
				continue
			}

			return nil, &LockfileOutdatedError{Name: entry.name}
		}

		activeEnv := env
		activeEnv.ActiveExtras = merged

		for depName, dep := range pkg.Dependencies {
			if markers.NormalizeName(depName) == "python" {
				continue
			}

			depExtras, applies := applicableExtras(dep, activeEnv)
			if !applies {
				continue
			}

			depNormalized := markers.NormalizeName(depName)

			existingDep, seen := visited[depNormalized]
			if seen && isSubset(depExtras, existingDep) {
				continue
			}

			queue = append(queue, queueEntry{name: depName, extras: unionExtras(existingDep, toSet(depExtras))})
		}
	}

	specs := make([]RequestedSpec, 0, len(visited))

	for normalized, extras := range visited {
		pkg, ok := lockfile.PackageByName(normalized)
		name := normalized

		var source string

		if ok {
			name = pkg.Name
			source = pkg.Source
		}

		specs = append(specs, RequestedSpec{
			Name:         name,
			Version:      pkg.Version,
			Source:       source,
			ActiveExtras: sortedKeys(extras),
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	scripts := map[string]manifest.ScriptEntry{}
	if project != nil {
		scripts = project.Scripts
	}

	return &InstallSet{Specs: specs, Scripts: scripts}, nil
}

// checkKnownExtras rejects a selected extra the project never declares
// under [tool.poetry.extras], the hard error spec.md §4.4 requires
// rather than silently treating it as a no-op marker.
func checkKnownExtras(project *manifest.Project, selected map[string]bool) error {
	var declared map[string][]string
	if project != nil {
		declared = project.Extras
	}

	for extra := range selected {
		if _, ok := declared[extra]; !ok {
			return &UnknownExtraError{Extra: extra}
		}
	}

	return nil
}

// buildRootDependencies unions dependencies and (unless noDev)
// dev-dependencies, drops any entry named "python", and drops entries
// whose marker does not apply under the selected extras. A manifest
// entry's `optional` flag is not read, so optional entries are kept
// whether or not an extra that lists them is selected.
func buildRootDependencies(project *manifest.Project, noDev bool, selected map[string]bool) (map[string]map[string]bool, error) {
	roots := map[string]map[string]bool{}

	add := func(name string, dep manifest.Dependency) error {
		if markers.NormalizeName(name) == "python" {
			return nil
		}

		extras, applies := applicableExtras(dep, markers.Env{ActiveExtras: selected})
		if !applies {
			return nil
		}

		roots[name] = unionExtras(roots[name], toSet(extras))

		return nil
	}

	if project == nil {
		return roots, nil
	}

	for name, dep := range project.Dependencies {
		if err := add(name, dep); err != nil {
			return nil, err
		}
	}

	if !noDev {
		for name, dep := range project.DevDependencies {
			if err := add(name, dep); err != nil {
				return nil, err
			}
		}
	}

	return roots, nil
}

// applicableExtras implements "what-version-and-extras-should-apply?"
// for the three dependency-value shapes spec.md §4.4 describes. The
// returned extras are those named in the dependency's `extras` field
// when the dependency itself is opted-in, not the extras it in turn
// requires of its own dependencies.
func applicableExtras(dep manifest.Dependency, env markers.Env) (extras []string, applies bool) {
	switch dep.Shape() {
	case "bare":
		return nil, true

	case "marker":
		if markerApplies(dep.Marker, env) {
			return dep.Extras, true
		}

		return nil, false

	case "alternatives":
		for _, alt := range dep.Alternatives {
			if markerApplies(alt.Marker, env) {
				return alt.Extras, true
			}
		}

		return nil, false

	default:
		return nil, true
	}
}

// markerApplies implements the marker rule of spec.md §4.4: an
// extra=="<X>" marker applies iff X is active; anything else goes
// through the ordinary environment-marker evaluator.
func markerApplies(marker string, env markers.Env) bool {
	if marker == "" {
		return true
	}

	if extra, ok := markers.IsExtraTest(marker); ok {
		return env.HasExtra(extra)
	}

	return markers.Eval(marker, env)
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}

	set := map[string]bool{}
	for _, i := range items {
		set[i] = true
	}

	return set
}

func unionExtras(a, b map[string]bool) map[string]bool {
	if len(a) == 0 && len(b) == 0 {
		return map[string]bool{}
	}

	out := map[string]bool{}

	for k := range a {
		out[k] = true
	}

	for k := range b {
		out[k] = true
	}

	return out
}

func extrasNotIn(want, have map[string]bool) []string {
	var delta []string

	for k := range want {
		if !have[k] {
			delta = append(delta, k)
		}
	}

	return delta
}

func isSubset(items []string, set map[string]bool) bool {
	for _, i := range items {
		if !set[i] {
			return false
		}
	}

	return true
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
