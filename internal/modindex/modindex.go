// Package modindex builds the module-name index the runtime launcher's
// import hook consults: for each top-level importable name, either a
// regular package's __init__.py plus every installed package's copy of
// that submodule tree (namespace-module merging), or a single file
// module's path. It also collects every .pth file shipped by installed
// packages (spec.md §4.6).
package modindex

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Installed is the minimal view of one store-resident package the
// index builder needs: its name and the site-packages directory that
// materializes it.
type Installed struct {
	Name         string
	SitePackages string
}

// ModuleSpec describes where the import hook should resolve one
// top-level module name: either a package with one or more search
// locations (namespace-merged across packages shipping the same
// directory name), or a single-file module with no search locations.
// InitFile is empty when the entry is a PEP 420 namespace package: every
// contributor's directory exists but none of them ships an __init__.py.
type ModuleSpec struct {
	InitFile             string // non-empty for a regular package's __init__.py, or a single-file module's path
	SubmoduleSearchPaths []string
}

// dirContributor is one package that ships a same-named subdirectory
// under a top-level module name, and whether that copy carries its own
// __init__.py.
type dirContributor struct {
	Installed
	HasInit bool
}

// Index is the result of building the module index once per process,
// after installation (spec.md §3's ModuleIndex).
type Index struct {
	Modules  map[string]ModuleSpec
	PthFiles []string
}

// Build scans every installed package's site-packages directory and
// merges top-level entries into a single module index, following the
// dir-module/file-module classification and pick-first-__init__.py
// policy of the original spec_paths algorithm.
func Build(packages []Installed, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dirModules := map[string][]dirContributor{}
	fileModules := map[string]string{}

	var pthFiles []string

	for _, pkg := range packages {
		entries, err := os.ReadDir(pkg.SitePackages)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("reading site-packages for %s: %w", pkg.Name, err)
		}

		for _, entry := range entries {
			name := entry.Name()

			if entry.IsDir() {
				initPath := filepath.Join(pkg.SitePackages, name, "__init__.py")
				_, err := os.Stat(initPath)
				dirModules[name] = append(dirModules[name], dirContributor{Installed: pkg, HasInit: err == nil})

				continue
			}

			parts := strings.Split(name, ".")

			switch {
			case len(parts) == 2 && isModuleSuffix(parts[1]):
				fileModules[parts[0]] = filepath.Join(pkg.SitePackages, name)
			case len(parts) == 3 && parts[2] == "so":
				// stem.<abi-tag>.so — platform extension module.
				fileModules[parts[0]] = filepath.Join(pkg.SitePackages, name)
			case strings.HasSuffix(name, ".pth"):
				pthFiles = append(pthFiles, filepath.Join(pkg.SitePackages, name))
			}
		}
	}

	for _, pkgs := range dirModules {
		sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	}

	modules := map[string]ModuleSpec{}

	for stem, path := range fileModules {
		if _, isDir := dirModules[stem]; isDir {
			// a package directory shadows a same-stem single-file module
			// (e.g. inflection 0.5.1 ships both forms across releases).
			continue
		}

		modules[stem] = ModuleSpec{InitFile: path}
	}

	for name, pkgs := range dirModules {
		var (
			searchPaths []string
			initFile    string
		)

		for _, pkg := range pkgs {
			searchPaths = append(searchPaths, filepath.Join(pkg.SitePackages, name))

			// pick-first: the first contributor (after the name sort
			// above) that actually ships an __init__.py wins it; a
			// contributor with no __init__.py still adds its directory
			// to the search path (PEP 420 namespace-package merging).
			// If none ships one, the entry is a namespace package and
			// InitFile stays empty.
			if initFile == "" && pkg.HasInit {
				initFile = filepath.Join(pkg.SitePackages, name, "__init__.py")
			}
		}

		modules[name] = ModuleSpec{InitFile: initFile, SubmoduleSearchPaths: searchPaths}
	}

	sort.Strings(pthFiles)

	logger.Debug("built module index", slog.Int("modules", len(modules)), slog.Int("pth_files", len(pthFiles)))

	return &Index{Modules: modules, PthFiles: pthFiles}, nil
}

func isModuleSuffix(ext string) bool {
	switch ext {
	case "py", "pyc", "so", "pyd":
		return true
	default:
		return false
	}
}
