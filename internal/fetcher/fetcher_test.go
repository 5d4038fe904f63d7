package fetcher_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sprawl-py/sprawl/internal/fetcher"
	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/tags"
)

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:])
}

func hostTags() []tags.Triple {
	return []tags.Triple{{Interpreter: "cp311", ABI: "cp311", Platform: "manylinux_2_17_x86_64"}}
}

// newIndexServer serves a single release file at /<name>/<version>/json
// and the wheel bytes themselves at /wheels/<filename>, counting
// downloads so cache-hit behavior can be asserted.
func newIndexServer(t *testing.T, name, version, filename, sha256Hex string, content []byte) (srv *httptest.Server, downloads *atomic.Int32) {
	t.Helper()

	downloads = &atomic.Int32{}
	mux := http.NewServeMux()

	mux.HandleFunc("/wheels/"+filename, func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		_, _ = w.Write(content)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/"+name+"/"+version+"/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		payload := map[string]any{
			"urls": []map[string]any{
				{
					"filename":    filename,
					"url":         srv.URL + "/wheels/" + filename,
					"packagetype": "bdist_wheel",
					"digests":     map[string]string{"sha256": sha256Hex},
				},
			},
		}

		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encoding fake index response: %v", err)
		}
	})

	return srv, downloads
}

func TestFetchDownloadsAndCaches(t *testing.T) {
	content := []byte("fake wheel content for testing")
	filename := "testpkg-1.0.0-cp311-cp311-manylinux_2_17_x86_64.whl"

	srv, downloads := newIndexServer(t, "testpkg", "1.0.0", filename, sha256Hex(content), content)

	destDir := t.TempDir()
	cacheDir := t.TempDir()

	svc := fetcher.New(destDir,
		fetcher.WithHTTPClient(srv.Client()),
		fetcher.WithIndexURL(srv.URL),
		fetcher.WithCacheDir(cacheDir),
	)

	spec := graph.RequestedSpec{Name: "testpkg", Version: "1.0.0"}

	path, parsed, err := svc.Fetch(context.Background(), spec, hostTags())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if parsed.Distribution != "testpkg" {
		t.Errorf("Distribution = %q, want %q", parsed.Distribution, "testpkg")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fetched wheel: %v", err)
	}

	if string(got) != string(content) {
		t.Errorf("fetched content mismatch")
	}

	if downloads.Load() != 1 {
		t.Fatalf("expected 1 download after first Fetch, got %d", downloads.Load())
	}

	// A second Fetch for the same spec should hit the cache rather
	// than issuing another download.
	cachedPath, _, err := svc.Fetch(context.Background(), spec, hostTags())
	if err != nil {
		t.Fatalf("second Fetch() error: %v", err)
	}

	wantCachePath := filepath.Join(cacheDir, "testpkg", "1.0.0", filename)
	if cachedPath != wantCachePath {
		t.Errorf("cachedPath = %q, want %q", cachedPath, wantCachePath)
	}

	if downloads.Load() != 1 {
		t.Fatalf("expected download count to stay at 1 after cache hit, got %d", downloads.Load())
	}
}

func TestFetchNoCompatibleWheel(t *testing.T) {
	content := []byte("irrelevant")
	filename := "testpkg-1.0.0-cp27-cp27m-linux_i686.whl"

	srv, _ := newIndexServer(t, "testpkg", "1.0.0", filename, sha256Hex(content), content)

	svc := fetcher.New(t.TempDir(),
		fetcher.WithHTTPClient(srv.Client()),
		fetcher.WithIndexURL(srv.URL),
		fetcher.WithCacheDir(t.TempDir()),
	)

	_, _, err := svc.Fetch(context.Background(), graph.RequestedSpec{Name: "testpkg", Version: "1.0.0"}, hostTags())
	if err == nil {
		t.Fatal("expected an error for a release with no compatible wheel, got nil")
	}
}

func TestFetchPackageNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing/1.0.0/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc := fetcher.New(t.TempDir(),
		fetcher.WithHTTPClient(srv.Client()),
		fetcher.WithIndexURL(srv.URL),
		fetcher.WithCacheDir(t.TempDir()),
	)

	_, _, err := svc.Fetch(context.Background(), graph.RequestedSpec{Name: "missing", Version: "1.0.0"}, hostTags())
	if err == nil {
		t.Fatal("expected an error for a missing package, got nil")
	}
}
