package wheel

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hash, size, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}

	if size != 6 {
		t.Errorf("size = %d, want 6", size)
	}

	algo, digest, err := parseRecordHash(hash)
	if err != nil {
		t.Fatalf("parseRecordHash() error: %v", err)
	}

	if algo != "sha256" || len(digest) != 32 {
		t.Errorf("algo=%q len(digest)=%d", algo, len(digest))
	}
}

func TestWriteRecordAndInstaller(t *testing.T) {
	dir := t.TempDir()
	distInfo := filepath.Join(dir, "demo-1.0.dist-info")

	if err := os.MkdirAll(distInfo, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := WriteInstaller(distInfo); err != nil {
		t.Fatalf("WriteInstaller() error: %v", err)
	}

	entries := []RecordEntry{{Path: "demo/__init__.py", Hash: "sha256=abc", Size: 10}}
	if err := WriteRecord(distInfo, entries); err != nil {
		t.Fatalf("WriteRecord() error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(distInfo, "RECORD"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if len(b) == 0 {
		t.Error("expected non-empty RECORD content")
	}
}

func TestReadRecordAndVerifyRecordEntry(t *testing.T) {
	dir := t.TempDir()
	distInfo := filepath.Join(dir, "demo-1.0.dist-info")

	if err := os.MkdirAll(distInfo, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "demo.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hash, size, err := HashFile(filepath.Join(dir, "demo.py"))
	if err != nil {
		t.Fatalf("HashFile() error: %v", err)
	}

	entries := []RecordEntry{{Path: "demo.py", Hash: hash, Size: size}}
	if err := WriteRecord(distInfo, entries); err != nil {
		t.Fatalf("WriteRecord() error: %v", err)
	}

	got, err := ReadRecord(dir)
	if err != nil {
		t.Fatalf("ReadRecord() error: %v", err)
	}

	// WriteRecord appends the RECORD file's own hash-less self-entry last.
	if len(got) != 2 || got[0].Path != "demo.py" || got[0].Hash != hash || got[1].Hash != "" {
		t.Fatalf("ReadRecord() = %+v", got)
	}

	if err := VerifyRecordEntry(dir, got[0]); err != nil {
		t.Errorf("VerifyRecordEntry() error: %v", err)
	}

	tampered := RecordEntry{Path: "demo.py", Hash: "sha256=deadbeef", Size: size}

	var mismatch *RecordMismatchError
	if err := VerifyRecordEntry(dir, tampered); err == nil {
		t.Error("expected mismatch error for tampered hash")
	} else if !errors.As(err, &mismatch) {
		t.Errorf("expected *RecordMismatchError, got %T: %v", err, err)
	}
}

func TestReadRecordNoDistInfo(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadRecord(dir); err == nil {
		t.Error("expected error when no *.dist-info directory is present")
	}
}
