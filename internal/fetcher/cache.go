package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sprawl-py/sprawl/internal/markers"
)

// cacheGet returns the cached wheel for (name, version, filename) if
// present and, when a digest was reported by the index, verified
// against it. A digest mismatch evicts the stale entry and reports a
// cache miss rather than returning bad data.
func (s *Service) cacheGet(name, version, filename, sha256Hex string) (string, bool) {
	path := s.cachePath(name, version, filename)

	if _, err := os.Stat(path); err != nil {
		return "", false
	}

	if sha256Hex != "" {
		got, err := fileSHA256(path)
		if err != nil || got != sha256Hex {
			_ = os.Remove(path)

			return "", false
		}
	}

	return path, true
}

// cachePut adopts the file at srcPath into the cache for (name,
// version, filename), renaming it into place atomically.
func (s *Service) cachePut(name, version, filename, srcPath string) error {
	dest := s.cachePath(name, version, filename)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	return os.Rename(srcPath, dest)
}

// cachePath returns the content-addressed path for one wheel, per
// spec.md §6's "<cache-root>/wheels/<name>/<version>/<filename>".
func (s *Service) cachePath(name, version, filename string) string {
	return filepath.Join(s.cacheDir, markers.NormalizeName(name), version, filename)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// defaultCacheDir returns the platform-appropriate default wheel cache
// directory, mirroring store.DefaultRoot's resolution but rooted under
// a "wheels" leaf rather than "store". Priority: SPRAWL_ROOT env var
// (with a "wheels" sibling of the store root) > platform default cache
// directory.
func defaultCacheDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}

	if root := getenv("SPRAWL_ROOT"); root != "" {
		return filepath.Join(filepath.Dir(root), "wheels")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sprawl", "wheels")
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Caches", "sprawl", "wheels")
	}

	if xdg := getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sprawl", "wheels")
	}

	return filepath.Join(home, ".cache", "sprawl", "wheels")
}
