package wheel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEntryPoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry_points.txt")

	content := "[console_scripts]\n" +
		"demo-cli = demo.cli:main\n" +
		"\n" +
		"[gui_scripts]\n" +
		"demo-gui = demo.gui:run\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := parseEntryPoints(path)
	if err != nil {
		t.Fatalf("parseEntryPoints() error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2: %+v", len(entries), entries)
	}

	if entries[0].Name != "demo-cli" || entries[0].GUI {
		t.Errorf("entries[0] = %+v", entries[0])
	}

	if entries[1].Name != "demo-gui" || !entries[1].GUI {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestParseEntryPointsMissingFile(t *testing.T) {
	entries, err := parseEntryPoints(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("parseEntryPoints() error: %v", err)
	}

	if entries != nil {
		t.Errorf("expected nil entries for missing file, got %+v", entries)
	}
}

func TestGenerateUnixScript(t *testing.T) {
	ep := EntryPoint{Name: "demo-cli", Module: "demo.cli", Function: "main"}

	script := string(generateUnixScript("/usr/bin/python3", ep))
	if script[:2] != "#!" {
		t.Errorf("script does not start with shebang: %q", script)
	}
}

func TestInstalledScripts(t *testing.T) {
	dir := t.TempDir()
	distInfo := filepath.Join(dir, "demo-1.0.dist-info")

	if err := os.MkdirAll(distInfo, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	content := "[console_scripts]\ndemo-cli = demo.cli:main\n"
	if err := os.WriteFile(filepath.Join(distInfo, "entry_points.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scripts, err := InstalledScripts(dir)
	if err != nil {
		t.Fatalf("InstalledScripts() error: %v", err)
	}

	if len(scripts) != 1 || filepath.Base(scripts[0]) != "demo-cli" {
		t.Errorf("InstalledScripts() = %+v", scripts)
	}
}

func TestInstalledScriptsNoDistInfo(t *testing.T) {
	scripts, err := InstalledScripts(t.TempDir())
	if err != nil {
		t.Fatalf("InstalledScripts() error: %v", err)
	}

	if scripts != nil {
		t.Errorf("expected nil scripts, got %+v", scripts)
	}
}
