// Package orchestrator drives the install of an InstallSet against the
// content-addressed store: partitioning already-present packages from
// missing ones, fetching and installing the missing set in parallel
// under a coarse cross-process lock (spec.md §4.5).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/markers"
	"github.com/sprawl-py/sprawl/internal/store"
	"github.com/sprawl-py/sprawl/internal/tags"
	"github.com/sprawl-py/sprawl/internal/wheel"
)

// Fetcher downloads a requested spec's wheel to a local file and
// reports its parsed filename, delegating to the external network
// client spec.md §6 places out of this system's scope.
type Fetcher interface {
	Fetch(ctx context.Context, spec graph.RequestedSpec, hostTags []tags.Triple) (archivePath string, filename tags.Filename, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxWorkers bounds the number of concurrent fetch+install jobs.
func WithMaxWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// Service installs an InstallSet into a Store.
type Service struct {
	store      *store.Store
	fetcher    Fetcher
	installer  *wheel.Service
	logger     *slog.Logger
	maxWorkers int
}

// New creates an install orchestrator targeting st, using fetcher to
// retrieve wheels not already present.
func New(st *store.Store, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:      st,
		fetcher:    fetcher,
		installer:  wheel.New(),
		logger:     slog.Default(),
		maxWorkers: 8,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// PythonVersion is the host interpreter's (major, minor) pair.
type PythonVersion struct {
	Major int
	Minor int
}

// Run partitions set against the store, fetches and installs the
// missing entries in parallel, and returns the merged, name-sorted list
// of installed packages (spec.md §4.5 steps 1-5).
func (s *Service) Run(ctx context.Context, set *graph.InstallSet, hostTags []tags.Triple, pyVersion PythonVersion) ([]store.Installed, error) {
	lock, err := store.AcquireLock(s.store.Root)
	if err != nil {
		return nil, fmt.Errorf("acquiring store lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	s.store.SweepTemp()

	existing, err := s.store.Walk()
	if err != nil {
		return nil, fmt.Errorf("enumerating store: %w", err)
	}

	present, missing := partition(set.Specs, existing, hostTags)

	if len(missing) == 0 {
		sortInstalled(present)

		return present, nil
	}

	installed, err := s.installMissing(ctx, missing, hostTags, pyVersion)
	if err != nil {
		return nil, err
	}

	merged := append(present, installed...)
	sortInstalled(merged)

	return merged, nil
}

// partition splits set's specs into those a store walk already
// satisfies (present) and those with no matching store entry (missing),
// keyed by normalized name, unique-version, and membership in hostTags.
func partition(specs []graph.RequestedSpec, existing []store.Installed, hostTags []tags.Triple) (present []store.Installed, missing []graph.RequestedSpec) {
	compatible := map[string]bool{}
	for _, t := range hostTags {
		compatible[tags.CanonicalTagDir(t)] = true
	}

	byKey := map[string]store.Installed{}

	for _, e := range existing {
		if !compatible[e.Tag] {
			continue
		}

		key := e.Name + "@" + e.UniqueVersion
		byKey[key] = e
	}

	for _, spec := range specs {
		uniqueVersion := spec.Version
		if spec.Source != "" {
			uniqueVersion = spec.Source
		}

		key := markers.NormalizeName(spec.Name) + "@" + uniqueVersion

		if installed, ok := byKey[key]; ok {
			present = append(present, installed)
		} else {
			missing = append(missing, spec)
		}
	}

	return present, missing
}

// installMissing fetches and installs every missing spec, running
// distinct package names concurrently via errgroup bounded by
// maxWorkers (spec.md §4.5 step 4).
func (s *Service) installMissing(ctx context.Context, specs []graph.RequestedSpec, hostTags []tags.Triple, pyVersion PythonVersion) ([]store.Installed, error) {
	results := make([]store.Installed, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)

	for i, spec := range specs {
		i, spec := i, spec

		g.Go(func() error {
			installed, err := s.fetchAndInstallOne(ctx, spec, hostTags, pyVersion)
			if err != nil {
				return fmt.Errorf("installing %s: %w", spec.Name, err)
			}

			results[i] = installed

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Service) fetchAndInstallOne(ctx context.Context, spec graph.RequestedSpec, hostTags []tags.Triple, pyVersion PythonVersion) (store.Installed, error) {
	archivePath, filename, err := s.fetcher.Fetch(ctx, spec, hostTags)
	if err != nil {
		return store.Installed{}, fmt.Errorf("fetching: %w", err)
	}

	idx, ok := filename.CompatibleWith(hostTags)
	if !ok {
		return store.Installed{}, &tags.IncompatibleWheelError{}
	}

	winningTriple := hostTags[idx]

	uniqueVersion := spec.Version
	if spec.Source != "" {
		uniqueVersion = spec.Source
	}

	coord := store.Coordinate{
		Name:          markers.NormalizeName(spec.Name),
		UniqueVersion: uniqueVersion,
		Tag:           tags.CanonicalTagDir(winningTriple),
	}

	finalDir := s.store.Path(coord)
	tempDir := s.store.TempSibling(coord, fmt.Sprintf("%d.%d", pyVersion.Major, pyVersion.Minor))

	dest := wheel.Destination{
		SitePackages:  tempDir,
		Scripts:       tempDir,
		Data:          tempDir,
		Headers:       tempDir,
		ShebangPython: "#sprawl-store-interpreter",
	}

	if err := ensureDirs(dest); err != nil {
		return store.Installed{}, err
	}

	if err := s.installer.Install(ctx, archivePath, filename, dest, wheel.Options{}); err != nil {
		return store.Installed{}, err
	}

	if err := atomicRename(tempDir, finalDir); err != nil {
		return store.Installed{}, fmt.Errorf("finalizing install of %s: %w", spec.Name, err)
	}

	s.logger.Debug("installed into store", slog.String("name", spec.Name), slog.String("version", uniqueVersion), slog.String("tag", coord.Tag))

	return store.Installed{Coordinate: coord, Path: finalDir}, nil
}

func sortInstalled(list []store.Installed) {
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
}
