package wheel_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sprawl-py/sprawl/internal/tags"
	"github.com/sprawl-py/sprawl/internal/wheel"
)

type zipEntry struct {
	name    string
	content string
}

func buildWheel(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)

	for _, e := range entries {
		fw, err := w.Create(e.name)
		if err != nil {
			t.Fatalf("zip Create(%s): %v", e.name, err)
		}

		if _, err := fw.Write([]byte(e.content)); err != nil {
			t.Fatalf("zip Write(%s): %v", e.name, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}

	return path
}

func hashOf(t *testing.T, content string) string {
	t.Helper()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "x")

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hash, _, err := wheel.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	return hash
}

func TestInstallBasicWheel(t *testing.T) {
	dir := t.TempDir()

	pkgInit := "print('hello')\n"
	metadata := "Metadata-Version: 2.1\nName: demo\nVersion: 1.0\n\n"
	wheelFile := "Wheel-Version: 1.0\nGenerator: sprawl\nRoot-Is-Purelib: true\nTag: py3-none-any\n"
	record := "demo/__init__.py," + hashOf(t, pkgInit) + ",13\n" +
		"demo-1.0.dist-info/METADATA," + hashOf(t, metadata) + "," + "0\n" +
		"demo-1.0.dist-info/WHEEL," + hashOf(t, wheelFile) + ",0\n" +
		"demo-1.0.dist-info/RECORD,,\n"

	archive := buildWheel(t, dir, "demo-1.0-py3-none-any.whl", []zipEntry{
		{"demo/__init__.py", pkgInit},
		{"demo-1.0.dist-info/METADATA", metadata},
		{"demo-1.0.dist-info/WHEEL", wheelFile},
		{"demo-1.0.dist-info/RECORD", record},
	})

	dest := wheel.Destination{
		SitePackages:  filepath.Join(dir, "site-packages"),
		Scripts:       filepath.Join(dir, "bin"),
		Data:          filepath.Join(dir, "data"),
		Headers:       filepath.Join(dir, "include"),
		ShebangPython: filepath.Join(dir, "bin", "python3"),
	}

	for _, d := range []string{dest.SitePackages, dest.Scripts, dest.Data, dest.Headers} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", d, err)
		}
	}

	filename, err := tags.Parse("demo-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	svc := wheel.New()

	if err := svc.Install(context.Background(), archive, filename, dest, wheel.Options{}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest.SitePackages, "demo", "__init__.py")); err != nil {
		t.Errorf("expected demo/__init__.py extracted: %v", err)
	}

	recordPath := filepath.Join(dest.SitePackages, "demo-1.0.dist-info", "RECORD")
	if _, err := os.Stat(recordPath); err != nil {
		t.Errorf("expected RECORD written: %v", err)
	}
}

func TestInstallRejectsNameMismatch(t *testing.T) {
	dir := t.TempDir()

	metadata := "Metadata-Version: 2.1\nName: other\nVersion: 1.0\n\n"
	wheelFile := "Wheel-Version: 1.0\nRoot-Is-Purelib: true\n"
	record := "demo-1.0.dist-info/RECORD,,\n"

	archive := buildWheel(t, dir, "demo-1.0-py3-none-any.whl", []zipEntry{
		{"demo-1.0.dist-info/METADATA", metadata},
		{"demo-1.0.dist-info/WHEEL", wheelFile},
		{"demo-1.0.dist-info/RECORD", record},
	})

	dest := wheel.Destination{
		SitePackages: filepath.Join(dir, "site-packages"),
		Scripts:      filepath.Join(dir, "bin"),
		Data:         filepath.Join(dir, "data"),
		Headers:      filepath.Join(dir, "include"),
	}

	for _, d := range []string{dest.SitePackages, dest.Scripts, dest.Data, dest.Headers} {
		_ = os.MkdirAll(d, 0o755)
	}

	filename, err := tags.Parse("demo-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	svc := wheel.New()

	err = svc.Install(context.Background(), archive, filename, dest, wheel.Options{})
	if err == nil {
		t.Fatal("expected error for METADATA Name mismatch")
	}
}

func TestInstallRejectsHashMismatch(t *testing.T) {
	dir := t.TempDir()

	metadata := "Metadata-Version: 2.1\nName: demo\nVersion: 1.0\n\n"
	wheelFile := "Wheel-Version: 1.0\nRoot-Is-Purelib: true\n"
	record := "demo/__init__.py,sha256=bm90dGhlcmVhbGhhc2g,0\n" +
		"demo-1.0.dist-info/RECORD,,\n"

	archive := buildWheel(t, dir, "demo-1.0-py3-none-any.whl", []zipEntry{
		{"demo/__init__.py", "print('hello')\n"},
		{"demo-1.0.dist-info/METADATA", metadata},
		{"demo-1.0.dist-info/WHEEL", wheelFile},
		{"demo-1.0.dist-info/RECORD", record},
	})

	dest := wheel.Destination{
		SitePackages: filepath.Join(dir, "site-packages"),
		Scripts:      filepath.Join(dir, "bin"),
		Data:         filepath.Join(dir, "data"),
		Headers:      filepath.Join(dir, "include"),
	}

	for _, d := range []string{dest.SitePackages, dest.Scripts, dest.Data, dest.Headers} {
		_ = os.MkdirAll(d, 0o755)
	}

	filename, err := tags.Parse("demo-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	svc := wheel.New()

	err = svc.Install(context.Background(), archive, filename, dest, wheel.Options{})
	if err == nil {
		t.Fatal("expected RECORD hash mismatch error")
	}
}
