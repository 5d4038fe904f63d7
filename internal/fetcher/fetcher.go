// Package fetcher is the "package fetcher" external collaborator spec.md
// §6 places outside this system's scope: fetch(name, version, filename,
// url) → local-path, backed by an on-disk cache keyed by (name, version,
// filename). It implements orchestrator.Fetcher directly against
// graph.RequestedSpec and internal/tags, rather than carrying forward a
// general-purpose PyPI client, download manager, and cache as three
// separate packages the way the teacher shipped them — one requested
// spec in, one local wheel path out.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/tags"
)

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the default HTTP client used for both the
// index query and the wheel download.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithIndexURL overrides the package-index base URL (default
// "https://pypi.org/pypi"), useful for pointing at an httptest.Server.
func WithIndexURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.indexURL = url
		}
	}
}

// WithCacheDir overrides the on-disk wheel cache directory (default
// under the platform cache root, spec.md §6's
// "<cache-root>/wheels/<name>/<version>/<filename>").
func WithCacheDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.cacheDir = dir
		}
	}
}

// Service fetches one graph.RequestedSpec's wheel: it queries the
// package index for (name, version), picks the URL whose parsed
// tags.Filename is compatible with the host's tags at the lowest (most
// specific) index, and downloads it into destDir, consulting and
// populating the wheel cache along the way.
type Service struct {
	httpClient *http.Client
	indexURL   string
	cacheDir   string
	destDir    string
}

// New creates a fetcher that stages downloads into destDir.
func New(destDir string, opts ...Option) *Service {
	s := &Service{
		httpClient: &http.Client{},
		indexURL:   defaultIndexURL,
		cacheDir:   defaultCacheDir(os.Getenv),
		destDir:    destDir,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Fetch implements orchestrator.Fetcher.
func (s *Service) Fetch(ctx context.Context, spec graph.RequestedSpec, hostTags []tags.Triple) (string, tags.Filename, error) {
	candidates, err := s.queryIndex(ctx, spec.Name, spec.Version)
	if err != nil {
		return "", tags.Filename{}, fmt.Errorf("querying index for %s %s: %w", spec.Name, spec.Version, err)
	}

	chosen, filename, err := selectCompatible(candidates, hostTags)
	if err != nil {
		return "", tags.Filename{}, fmt.Errorf("%s %s: %w", spec.Name, spec.Version, err)
	}

	if path, ok := s.cacheGet(spec.Name, spec.Version, chosen.Filename, chosen.SHA256); ok {
		return path, filename, nil
	}

	path, err := s.download(ctx, chosen)
	if err != nil {
		return "", tags.Filename{}, fmt.Errorf("downloading %s %s: %w", spec.Name, spec.Version, err)
	}

	if err := s.cachePut(spec.Name, spec.Version, chosen.Filename, path); err != nil {
		return "", tags.Filename{}, fmt.Errorf("caching %s: %w", chosen.Filename, err)
	}

	return s.cachePath(spec.Name, spec.Version, chosen.Filename), filename, nil
}

// selectCompatible picks the candidate whose filename is compatible
// with hostTags at the lowest (most-preferred) index, skipping any
// candidate that isn't a wheel or doesn't parse as one.
func selectCompatible(candidates []releaseFile, hostTags []tags.Triple) (releaseFile, tags.Filename, error) {
	bestPriority := len(hostTags)

	var (
		best     releaseFile
		bestName tags.Filename
		found    bool
	)

	for _, c := range candidates {
		if c.PackageType != "bdist_wheel" {
			continue
		}

		parsed, err := tags.Parse(c.Filename)
		if err != nil {
			continue
		}

		idx, ok := parsed.CompatibleWith(hostTags)
		if !ok || idx >= bestPriority {
			continue
		}

		bestPriority = idx
		best = c
		bestName = parsed
		found = true

		if bestPriority == 0 {
			break
		}
	}

	if !found {
		return releaseFile{}, tags.Filename{}, fmt.Errorf("no compatible wheel found among %d release files", len(candidates))
	}

	return best, bestName, nil
}
