package orchestrator_test

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/orchestrator"
	"github.com/sprawl-py/sprawl/internal/store"
	"github.com/sprawl-py/sprawl/internal/tags"
)

func hostTags() []tags.Triple {
	return []tags.Triple{{Interpreter: "py3", ABI: "none", Platform: "any"}}
}

func hashLine(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

func buildWheelFile(dir, distName, version string) (path string, filename tags.Filename, err error) {
	initPy := "print('hi')\n"
	metadata := "Metadata-Version: 2.1\nName: " + distName + "\nVersion: " + version + "\n\n"
	wheelFile := "Wheel-Version: 1.0\nGenerator: sprawl\nRoot-Is-Purelib: true\nTag: py3-none-any\n"
	distInfo := distName + "-" + version + ".dist-info"

	record := distName + "/__init__.py," + hashLine(initPy) + "," + "0\n" +
		distInfo + "/METADATA," + hashLine(metadata) + ",0\n" +
		distInfo + "/WHEEL," + hashLine(wheelFile) + ",0\n" +
		distInfo + "/RECORD,,\n"

	archivePath := filepath.Join(dir, distName+"-"+version+"-py3-none-any.whl")

	f, err := os.Create(archivePath)
	if err != nil {
		return "", tags.Filename{}, err
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)

	entries := map[string]string{
		distName + "/__init__.py": initPy,
		distInfo + "/METADATA":    metadata,
		distInfo + "/WHEEL":       wheelFile,
		distInfo + "/RECORD":      record,
	}

	for name, content := range entries {
		fw, err := zw.Create(name)
		if err != nil {
			return "", tags.Filename{}, err
		}

		if _, err := fw.Write([]byte(content)); err != nil {
			return "", tags.Filename{}, err
		}
	}

	if err := zw.Close(); err != nil {
		return "", tags.Filename{}, err
	}

	fn, err := tags.Parse(filepath.Base(archivePath))
	if err != nil {
		return "", tags.Filename{}, err
	}

	return archivePath, fn, nil
}

// fakeFetcher serves a pre-built wheel file for every fetch, counting
// how many times each distinct package name was asked for.
type fakeFetcher struct {
	dir   string
	calls map[string]int
}

func (f *fakeFetcher) Fetch(_ context.Context, spec graph.RequestedSpec, _ []tags.Triple) (string, tags.Filename, error) {
	f.calls[spec.Name]++

	return buildWheelFile(f.dir, spec.Name, spec.Version)
}

func TestRunInstallsMissingAndSkipsPresent(t *testing.T) {
	root := t.TempDir()

	st, err := store.New(root)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	wheelDir := t.TempDir()
	fetcher := &fakeFetcher{dir: wheelDir, calls: map[string]int{}}

	svc := orchestrator.New(st, fetcher)

	set := &graph.InstallSet{
		Specs: []graph.RequestedSpec{
			{Name: "alpha", Version: "1.0"},
			{Name: "beta", Version: "2.0"},
		},
	}

	installed, err := svc.Run(context.Background(), set, hostTags(), orchestrator.PythonVersion{Major: 3, Minor: 11})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(installed) != 2 {
		t.Fatalf("installed = %v, want 2 entries", installed)
	}

	for _, pkg := range installed {
		if _, err := os.Stat(pkg.Path); err != nil {
			t.Errorf("expected install directory to exist at %s: %v", pkg.Path, err)
		}
	}

	// Running again against the same store must not re-fetch either package.
	if _, err := svc.Run(context.Background(), set, hostTags(), orchestrator.PythonVersion{Major: 3, Minor: 11}); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}

	for name, n := range fetcher.calls {
		if n != 1 {
			t.Errorf("fetch count for %s = %d, want 1 (second run should hit the store)", name, n)
		}
	}
}

func TestRunSortsResultsByName(t *testing.T) {
	root := t.TempDir()

	st, err := store.New(root)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	wheelDir := t.TempDir()
	fetcher := &fakeFetcher{dir: wheelDir, calls: map[string]int{}}

	svc := orchestrator.New(st, fetcher)

	set := &graph.InstallSet{
		Specs: []graph.RequestedSpec{
			{Name: "zeta", Version: "1.0"},
			{Name: "alpha", Version: "1.0"},
		},
	}

	installed, err := svc.Run(context.Background(), set, hostTags(), orchestrator.PythonVersion{Major: 3, Minor: 11})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(installed) != 2 || installed[0].Name != "alpha" || installed[1].Name != "zeta" {
		t.Errorf("installed = %v, want [alpha, zeta]", installed)
	}
}
