package manifest

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// ScriptEntry is one root-level console-script mapping: a name the
// launcher can dispatch to a module-level callable.
type ScriptEntry struct {
	Module   string
	Function string
	Extras   []string
}

// Project is the parsed root-project manifest (a Poetry-style
// pyproject.toml's [tool.poetry] section), per spec.md §3's manifest
// model.
type Project struct {
	Dependencies    map[string]Dependency
	DevDependencies map[string]Dependency
	Extras          map[string][]string
	Scripts         map[string]ScriptEntry
}

type rawPyproject struct {
	Tool struct {
		Poetry struct {
			Dependencies    map[string]interface{}    `toml:"dependencies"`
			DevDependencies map[string]interface{}    `toml:"dev-dependencies"`
			Extras          map[string][]string        `toml:"extras"`
			Scripts         map[string]string           `toml:"scripts"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// ParseProject parses a pyproject.toml's [tool.poetry] section.
func ParseProject(data []byte) (*Project, error) {
	var raw rawPyproject
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid pyproject.toml: %w", err)
	}

	p := &Project{
		Dependencies:    map[string]Dependency{},
		DevDependencies: map[string]Dependency{},
		Extras:          raw.Tool.Poetry.Extras,
		Scripts:         map[string]ScriptEntry{},
	}

	for name, v := range raw.Tool.Poetry.Dependencies {
		dep, err := parseDependencyValue(v)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}

		p.Dependencies[name] = dep
	}

	for name, v := range raw.Tool.Poetry.DevDependencies {
		dep, err := parseDependencyValue(v)
		if err != nil {
			return nil, fmt.Errorf("dev-dependency %s: %w", name, err)
		}

		p.DevDependencies[name] = dep
	}

	for name, target := range raw.Tool.Poetry.Scripts {
		module, function, err := splitEntryPoint(target)
		if err != nil {
			return nil, fmt.Errorf("script %s: %w", name, err)
		}

		p.Scripts[name] = ScriptEntry{Module: module, Function: function}
	}

	return p, nil
}

// splitEntryPoint splits a "module:function" entry-point target, the
// shape used both in [tool.poetry.scripts] and entry_points.txt.
func splitEntryPoint(target string) (module, function string, err error) {
	for i := 0; i < len(target); i++ {
		if target[i] == ':' {
			return target[:i], target[i+1:], nil
		}
	}

	return "", "", fmt.Errorf("entry point %q is missing a ':' separator", target)
}
