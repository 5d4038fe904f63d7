package manifest

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/sprawl-py/sprawl/internal/markers"
)

// DependencyAlternative is one marker-gated option within a dependency's
// alternatives list.
type DependencyAlternative struct {
	Constraint string
	Marker     string
	Extras     []string
}

// Dependency is one value in a lockfile package's dependency map, in one
// of the three shapes spec.md §3 describes.
type Dependency struct {
	// Bare is set when the value is a plain version constraint string
	// with no marker or extras.
	Bare string

	// Constraint/Marker/Extras are set when the value carries a single
	// marker-gated constraint.
	Constraint string
	Marker     string
	Extras     []string

	// Alternatives is set when the value is a list, each entry gated by
	// its own marker.
	Alternatives []DependencyAlternative
}

// Shape reports which of the three dependency-value shapes this value
// takes.
func (d Dependency) Shape() string {
	switch {
	case len(d.Alternatives) > 0:
		return "alternatives"
	case d.Marker != "" || len(d.Extras) > 0:
		return "marker"
	default:
		return "bare"
	}
}

// FileHash is one recorded file/hash pair for a locked package.
type FileHash struct {
	File string
	Hash string
}

// LockedPackage is one [[package]] record of a parsed lockfile.
type LockedPackage struct {
	Name                   string
	Version                string
	Optional               bool
	PythonVersionConstraint string
	Dependencies           map[string]Dependency
	Source                 string // VCS/url source, empty for index-sourced packages
}

// Lockfile is the normalized result of parsing a Poetry-style lockfile,
// hiding the format-1.1-versus-2.0 file-hash layout difference behind
// FilenamesFor.
type Lockfile struct {
	Packages    []LockedPackage
	FormatVersion string

	filesByName map[string][]FileHash
}

// PackageByName returns the locked package record with the given
// normalized name, and whether it was found.
func (l *Lockfile) PackageByName(name string) (LockedPackage, bool) {
	name = markers.NormalizeName(name)

	for _, p := range l.Packages {
		if markers.NormalizeName(p.Name) == name {
			return p, true
		}
	}

	return LockedPackage{}, false
}

// FilenamesFor returns the recorded wheel/sdist filenames and hashes for
// a package, regardless of whether the source lockfile carried them in
// the top-level 1.1-style hash table or the per-package 2.0-style list.
func (l *Lockfile) FilenamesFor(name string) []FileHash {
	return l.filesByName[markers.NormalizeName(name)]
}

// rawLockfile mirrors the on-disk TOML shape; its metadata.files table
// is keyed by package name for format 1.1, while format 2.0 instead
// carries a `files` array directly on each package record.
type rawLockfile struct {
	Package []rawPackage `toml:"package"`
	Metadata rawMetadata `toml:"metadata"`
}

type rawPackage struct {
	Name           string                     `toml:"name"`
	Version        string                     `toml:"version"`
	Optional       bool                       `toml:"optional"`
	PythonVersions string                     `toml:"python-versions"`
	Dependencies   map[string]interface{}     `toml:"dependencies"`
	Source         rawSource                  `toml:"source"`
	Files          []rawHashedFile            `toml:"files"` // format 2.0
}

type rawSource struct {
	Type string `toml:"type"`
	URL  string `toml:"url"`
}

type rawMetadata struct {
	LockVersion string                      `toml:"lock-version"`
	Files       map[string][]rawHashedFile `toml:"files"` // format 1.1
}

type rawHashedFile struct {
	File string `toml:"file"`
	Hash string `toml:"hash"`
}

// ParseLockfile parses a Poetry-style lockfile's bytes, accepting either
// lock-format "1.1" or "2.0" shape for file hashes (spec.md §4.2).
func ParseLockfile(data []byte) (*Lockfile, error) {
	var raw rawLockfile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid lockfile: %w", err)
	}

	lf := &Lockfile{
		FormatVersion: raw.Metadata.LockVersion,
		filesByName:   map[string][]FileHash{},
	}

	for name, files := range raw.Metadata.Files {
		key := markers.NormalizeName(name)
		for _, f := range files {
			lf.filesByName[key] = append(lf.filesByName[key], FileHash{File: f.File, Hash: f.Hash})
		}
	}

	for _, rp := range raw.Package {
		pkg := LockedPackage{
			Name:                    rp.Name,
			Version:                 rp.Version,
			Optional:                rp.Optional,
			PythonVersionConstraint: rp.PythonVersions,
			Dependencies:            map[string]Dependency{},
		}

		if rp.Source.URL != "" {
			pkg.Source = rp.Source.URL
		}

		for depName, rawDep := range rp.Dependencies {
			dep, err := parseDependencyValue(rawDep)
			if err != nil {
				return nil, fmt.Errorf("package %s: dependency %s: %w", rp.Name, depName, err)
			}

			pkg.Dependencies[depName] = dep
		}

		if len(rp.Files) > 0 {
			key := markers.NormalizeName(rp.Name)
			for _, f := range rp.Files {
				lf.filesByName[key] = append(lf.filesByName[key], FileHash{File: f.File, Hash: f.Hash})
			}
		}

		lf.Packages = append(lf.Packages, pkg)
	}

	// sort by name so any downstream caller doing a walk sees a stable order
	sort.Slice(lf.Packages, func(i, j int) bool { return lf.Packages[i].Name < lf.Packages[j].Name })

	return lf, nil
}

// parseDependencyValue interprets one dependency map value, which TOML
// decodes as either a bare string, an inline table ({version=..,
// markers=.., extras=[..]}), or an array of such tables.
func parseDependencyValue(v interface{}) (Dependency, error) {
	switch val := v.(type) {
	case string:
		return Dependency{Bare: val}, nil

	case map[string]interface{}:
		return dependencyFromTable(val), nil

	case []interface{}:
		var alts []DependencyAlternative

		for _, item := range val {
			table, ok := item.(map[string]interface{})
			if !ok {
				return Dependency{}, fmt.Errorf("alternatives entry is not a table")
			}

			d := dependencyFromTable(table)
			alts = append(alts, DependencyAlternative{Constraint: d.Constraint, Marker: d.Marker, Extras: d.Extras})
		}

		return Dependency{Alternatives: alts}, nil

	default:
		return Dependency{}, fmt.Errorf("unsupported dependency value shape %T", v)
	}
}

func dependencyFromTable(table map[string]interface{}) Dependency {
	var d Dependency

	if v, ok := table["version"].(string); ok {
		d.Constraint = v
	}

	if v, ok := table["markers"].(string); ok {
		d.Marker = v
	}

	if raw, ok := table["extras"].([]interface{}); ok {
		for _, e := range raw {
			if s, ok := e.(string); ok {
				d.Extras = append(d.Extras, s)
			}
		}
	}

	return d
}
