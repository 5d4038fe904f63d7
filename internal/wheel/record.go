package wheel

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RecordEntry is a single row of a wheel's RECORD manifest: path,
// optional "algo=base64digest" hash, optional size.
type RecordEntry struct {
	Path string
	Hash string
	Size int64
}

// readExistingRecord reads the archive's own RECORD file into a
// path→hash map, used to verify extracted files against the hashes the
// wheel itself declares (spec.md §4.3 step 5). Rows with no hash (the
// RECORD file's own self-entry) are omitted.
func readExistingRecord(files []*zip.File, distInfoName string) (map[string]string, error) {
	recordName := distInfoName + "/RECORD"

	for _, f := range files {
		if f.Name != recordName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &InvalidWheelError{Detail: fmt.Sprintf("opening RECORD: %v", err)}
		}
		defer func() { _ = rc.Close() }()

		reader := csv.NewReader(rc)
		reader.FieldsPerRecord = -1

		rows, err := reader.ReadAll()
		if err != nil {
			return nil, &InvalidWheelError{Detail: fmt.Sprintf("parsing RECORD: %v", err)}
		}

		result := map[string]string{}

		for _, row := range rows {
			if len(row) != 3 {
				return nil, &InvalidWheelError{Detail: fmt.Sprintf("RECORD row with %d columns, want 3: %v", len(row), row)}
			}

			if row[1] != "" {
				result[row[0]] = row[1]
			}
		}

		return result, nil
	}

	return nil, &InvalidWheelError{Detail: "no RECORD file in " + distInfoName}
}

// WriteRecord writes a RECORD file to the dist-info directory,
// appending the RECORD file's own empty-hash self-entry last.
func WriteRecord(distInfoDir string, entries []RecordEntry) error {
	recordPath := filepath.Join(distInfoDir, "RECORD")

	f, err := os.Create(recordPath)
	if err != nil {
		return fmt.Errorf("creating RECORD: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)

	for _, e := range entries {
		if err := w.Write([]string{e.Path, e.Hash, strconv.FormatInt(e.Size, 10)}); err != nil {
			return fmt.Errorf("writing RECORD entry: %w", err)
		}
	}

	relRecord := filepath.Join(filepath.Base(distInfoDir), "RECORD")
	if err := w.Write([]string{relRecord, "", ""}); err != nil {
		return fmt.Errorf("writing RECORD self-entry: %w", err)
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing RECORD: %w", err)
	}

	return f.Close()
}

// WriteInstaller writes the INSTALLER dist-info file.
func WriteInstaller(distInfoDir string) error {
	return os.WriteFile(filepath.Join(distInfoDir, "INSTALLER"), []byte("sprawl\n"), 0o644)
}

// ReadRecord locates the single *.dist-info directory under an
// installed package's root and parses its on-disk RECORD file, for
// post-install verification (spec.md §8's re-verify property).
func ReadRecord(installDir string) ([]RecordEntry, error) {
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", installDir, err)
	}

	var distInfoDir string

	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".dist-info") {
			distInfoDir = e.Name()

			break
		}
	}

	if distInfoDir == "" {
		return nil, &InvalidWheelError{Detail: "no *.dist-info directory under " + installDir}
	}

	recordPath := filepath.Join(installDir, distInfoDir, "RECORD")

	f, err := os.Open(recordPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", recordPath, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", recordPath, err)
	}

	records := make([]RecordEntry, 0, len(rows))

	for _, row := range rows {
		if len(row) != 3 {
			return nil, &InvalidWheelError{Detail: fmt.Sprintf("RECORD row with %d columns, want 3: %v", len(row), row)}
		}

		size, _ := strconv.ParseInt(row[2], 10, 64)
		records = append(records, RecordEntry{Path: row[0], Hash: row[1], Size: size})
	}

	return records, nil
}

// VerifyRecordEntry recomputes e's file hash relative to installDir and
// compares it against the digest RECORD declares.
func VerifyRecordEntry(installDir string, e RecordEntry) error {
	path := filepath.Join(installDir, e.Path)

	got, _, err := HashFile(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", e.Path, err)
	}

	if got != e.Hash {
		return &RecordMismatchError{Path: e.Path}
	}

	return nil
}

// HashFile computes a wheel-RECORD-style hash ("sha256=<urlsafe-base64,
// no padding>") and size for a file on disk.
func HashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}

	digest := "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))

	return digest, n, nil
}

// parseRecordHash splits a RECORD hash field into its algorithm and raw
// digest bytes, accepting both the PEP 427 base64 form and a plain hex
// digest for defensiveness against hand-edited RECORDs. Hex is tried
// first, since a hex string is also valid base64 text.
func parseRecordHash(field string) (algo string, digest []byte, err error) {
	algo, enc, ok := strings.Cut(field, "=")
	if !ok {
		return "", nil, fmt.Errorf("malformed hash field %q", field)
	}

	if b, err := hex.DecodeString(enc); err == nil {
		return algo, b, nil
	}

	b, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("malformed hash digest %q: %w", enc, err)
	}

	return algo, b, nil
}
