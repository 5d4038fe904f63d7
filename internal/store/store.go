// Package store computes paths into the content-addressed package store
// and serializes mutations to it across processes.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sprawl-py/sprawl/internal/markers"
)

// Coordinate identifies one materialization in the store: the four
// coordinates that uniquely pin down an installed package directory.
type Coordinate struct {
	Name          string // normalized distribution name
	UniqueVersion string // PEP 440 version, or resolved VCS reference
	Tag           string // canonical "python-abi-platform" triple
}

// Store locates and manages the on-disk tree rooted at Root.
//
//	<root>/<name>/<unique-version>/<tag>/...
type Store struct {
	Root   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{Root: root, logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w", s.Root, err)
	}

	return s, nil
}

// DefaultRoot returns the platform-appropriate default store root.
// Priority: SPRAWL_ROOT env var > platform default cache directory.
func DefaultRoot(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}

	if root := getenv("SPRAWL_ROOT"); root != "" {
		return root
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sprawl", "store")
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Caches", "sprawl", "store")
	}

	if xdg := getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sprawl", "store")
	}

	return filepath.Join(home, ".cache", "sprawl", "store")
}

func normalizedName(name string) string {
	return markers.NormalizeName(name)
}

// Path returns the directory for one materialization, creating no
// directories itself.
func (s *Store) Path(c Coordinate) string {
	return filepath.Join(s.Root, normalizedName(c.Name), c.UniqueVersion, c.Tag)
}

// TempSibling returns a path for a scratch directory next to the final
// package directory, inside the same <name>/<unique-version> parent, so
// that installation can complete with a single rename(2) into place.
func (s *Store) TempSibling(c Coordinate, suffix string) string {
	parent := filepath.Join(s.Root, normalizedName(c.Name), c.UniqueVersion)

	return filepath.Join(parent, ".tmp-"+c.Tag+"-"+suffix)
}

// IsTempName reports whether a directory entry name is one of the
// scratch directories TempSibling produces, i.e. garbage left behind by
// a process that crashed mid-install.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".tmp-")
}

// Installed is one directory actually present under the store, the
// spec's InstalledPackage coordinates plus the resolved absolute path.
type Installed struct {
	Coordinate
	Path string
}

// Walk lists every complete (non-temporary) package directory under the
// store root, three levels deep: name / unique-version / tag. A stray
// file at the name level, or a directory that cannot be read, produces a
// warning through the logger and is skipped; stray files at deeper
// levels are skipped silently. Neither fails the walk.
func (s *Store) Walk() ([]Installed, error) {
	var out []Installed

	nameEntries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading store root %s: %w", s.Root, err)
	}

	for _, nameEntry := range nameEntries {
		if !nameEntry.IsDir() {
			s.logger.Warn("store: unexpected file at name level, skipping", slog.String("path", nameEntry.Name()))

			continue
		}

		name := nameEntry.Name()
		nameDir := filepath.Join(s.Root, name)

		versionEntries, err := os.ReadDir(nameDir)
		if err != nil {
			s.logger.Warn("store: cannot read name directory, skipping", slog.String("dir", nameDir), slog.String("error", err.Error()))

			continue
		}

		for _, versionEntry := range versionEntries {
			if !versionEntry.IsDir() {
				continue
			}

			version := versionEntry.Name()
			versionDir := filepath.Join(nameDir, version)

			tagEntries, err := os.ReadDir(versionDir)
			if err != nil {
				s.logger.Warn("store: cannot read version directory, skipping", slog.String("dir", versionDir), slog.String("error", err.Error()))

				continue
			}

			for _, tagEntry := range tagEntries {
				if !tagEntry.IsDir() || IsTempName(tagEntry.Name()) {
					continue
				}

				tag := tagEntry.Name()
				out = append(out, Installed{
					Coordinate: Coordinate{Name: name, UniqueVersion: version, Tag: tag},
					Path:       filepath.Join(versionDir, tag),
				})
			}
		}
	}

	return out, nil
}

// SweepTemp removes stray scratch directories left behind by a process
// that crashed between unpacking into TempSibling and renaming it into
// place. Opportunistic: errors removing one entry are logged, not fatal.
func (s *Store) SweepTemp() {
	nameEntries, err := os.ReadDir(s.Root)
	if err != nil {
		return
	}

	for _, nameEntry := range nameEntries {
		if !nameEntry.IsDir() {
			continue
		}

		versionEntries, err := os.ReadDir(filepath.Join(s.Root, nameEntry.Name()))
		if err != nil {
			continue
		}

		for _, versionEntry := range versionEntries {
			parent := filepath.Join(s.Root, nameEntry.Name(), versionEntry.Name())

			tagEntries, err := os.ReadDir(parent)
			if err != nil {
				continue
			}

			for _, tagEntry := range tagEntries {
				if IsTempName(tagEntry.Name()) {
					path := filepath.Join(parent, tagEntry.Name())
					if err := os.RemoveAll(path); err != nil {
						s.logger.Warn("store: failed to sweep stale temp dir", slog.String("path", path), slog.String("error", err.Error()))
					}
				}
			}
		}
	}
}
