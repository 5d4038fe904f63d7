// Package wheel installs a single wheel archive into a caller-supplied
// destination, either a conventional virtual-environment layout or a
// content-addressed store directory (spec.md §4.3).
package wheel

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sprawl-py/sprawl/internal/tags"
)

// Destination is the set of directories a wheel's members are unpacked
// into. Both venv mode and store mode synthesize the same shape, so the
// rest of the installer never distinguishes between them (spec.md
// §4.3's two-destination-mode design).
type Destination struct {
	SitePackages string // purelib/platlib target
	Scripts      string // console_scripts / gui_scripts target
	Data         string // .data/data target
	Headers      string // .data/headers target

	// ShebangPython is written as the first line of generated console
	// scripts. Store-mode installs pass a marker shebang instead of a
	// real interpreter path; §4.6 and the launcher rewrite it later.
	ShebangPython string
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

// WithBytecodeCompiler sets the callback used to compile extracted .py
// files to .pyc by invoking the install's interpreter once with a file
// list on stdin (spec.md §4.3 step 8). A nil compiler (the default)
// skips bytecode compilation.
func WithBytecodeCompiler(fn func(ctx context.Context, pythonPath string, files []string) error) Option {
	return func(s *Service) {
		s.compileBytecode = fn
	}
}

// Service installs wheel archives.
type Service struct {
	logger          *slog.Logger
	compileBytecode func(ctx context.Context, pythonPath string, files []string) error
}

// New creates a wheel installer.
func New(opts ...Option) *Service {
	s := &Service{logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// InvalidWheelError reports a structurally malformed wheel archive.
type InvalidWheelError struct {
	Detail string
}

func (e *InvalidWheelError) Error() string { return fmt.Sprintf("invalid wheel: %s", e.Detail) }

// RecordMismatchError reports an extracted file's hash not matching its
// RECORD row.
type RecordMismatchError struct {
	Path string
}

func (e *RecordMismatchError) Error() string { return fmt.Sprintf("RECORD hash mismatch: %s", e.Path) }

// MetadataError reports a METADATA/WHEEL parse or consistency failure.
type MetadataError struct {
	Detail string
}

func (e *MetadataError) Error() string { return fmt.Sprintf("metadata error: %s", e.Detail) }

// ScriptLauncherError reports a failure generating an entry-point
// launcher.
type ScriptLauncherError struct {
	Name   string
	Detail string
}

func (e *ScriptLauncherError) Error() string {
	return fmt.Sprintf("script launcher %s: %s", e.Name, e.Detail)
}

// Options bundle the per-install knobs spec.md §4.3 names.
type Options struct {
	CompileBytecode bool
	ExtraTags       []string
}

// Install extracts archivePath (a wheel whose basename parses to
// filename) into dest, verifying every RECORD hash and generating
// console_scripts/gui_scripts launchers. It implements the eight-step
// algorithm of spec.md §4.3.
func (s *Service) Install(ctx context.Context, archivePath string, filename tags.Filename, dest Destination, opts Options) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return &InvalidWheelError{Detail: fmt.Sprintf("opening %s: %v", archivePath, err)}
	}
	defer func() { _ = r.Close() }()

	distInfoName, err := findDistInfoDir(r.File)
	if err != nil {
		return err
	}

	wheelMeta, err := readWheelFile(r.File, distInfoName)
	if err != nil {
		return err
	}

	if err := wheelMeta.checkSupported(); err != nil {
		return err
	}

	metaName, err := readMetadataName(r.File, distInfoName)
	if err != nil {
		return err
	}

	if normalizeDistribution(metaName) != normalizeDistribution(filename.Distribution) {
		return &MetadataError{Detail: fmt.Sprintf("METADATA Name %q does not match filename distribution %q", metaName, filename.Distribution)}
	}

	existingRecord, err := readExistingRecord(r.File, distInfoName)
	if err != nil {
		return err
	}

	var (
		written []string
		records []RecordEntry
	)

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		destPath, category := resolveDestination(f.Name, dest, wheelMeta.RootIsPurelib)
		if category == categorySkip {
			continue
		}

		base := baseForCategory(category, dest)
		if !isInsideDir(destPath, base) {
			return &InvalidWheelError{Detail: fmt.Sprintf("zip slip detected: %s resolves outside %s", f.Name, base)}
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.Name, err)
		}

		if err := extractFile(f, destPath); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}

		if category == categoryScripts {
			if err := rewriteShebangIfPython(destPath, dest.ShebangPython); err != nil {
				return err
			}

			if err := os.Chmod(destPath, 0o755); err != nil {
				return fmt.Errorf("setting executable permission on %s: %w", destPath, err)
			}
		}

		hash, size, err := HashFile(destPath)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", destPath, err)
		}

		if want, ok := existingRecord[f.Name]; ok && want != "" && want != hash {
			return &RecordMismatchError{Path: f.Name}
		}

		written = append(written, destPath)
		records = append(records, RecordEntry{Path: recordRelPath(destPath, dest), Hash: hash, Size: size})
	}

	if err := WriteInstaller(distInfoDirOnDisk(dest, distInfoName)); err != nil {
		return fmt.Errorf("writing INSTALLER: %w", err)
	}

	distInfoDisk := distInfoDirOnDisk(dest, distInfoName)

	installerPath := filepath.Join(distInfoDisk, "INSTALLER")

	hash, size, err := HashFile(installerPath)
	if err != nil {
		return fmt.Errorf("hashing INSTALLER: %w", err)
	}

	records = append(records, RecordEntry{Path: recordRelPath(installerPath, dest), Hash: hash, Size: size})

	scriptRecords, scriptFiles, err := s.installEntryPoints(distInfoDisk, dest)
	if err != nil {
		return err
	}

	records = append(records, scriptRecords...)
	written = append(written, scriptFiles...)

	if err := WriteRecord(distInfoDisk, records); err != nil {
		return fmt.Errorf("writing RECORD: %w", err)
	}

	if opts.CompileBytecode && s.compileBytecode != nil {
		pyFiles := filterPyFiles(written)
		if len(pyFiles) > 0 {
			if err := s.compileBytecode(ctx, dest.ShebangPython, pyFiles); err != nil {
				return fmt.Errorf("compiling bytecode: %w", err)
			}
		}
	}

	s.logger.Debug("installed wheel", slog.String("distribution", filename.Distribution), slog.String("version", filename.Version))

	return nil
}

func filterPyFiles(paths []string) []string {
	var out []string

	for _, p := range paths {
		if strings.HasSuffix(p, ".py") {
			out = append(out, p)
		}
	}

	return out
}

func findDistInfoDir(files []*zip.File) (string, error) {
	for _, f := range files {
		name := strings.TrimSuffix(f.Name, "/")
		if !strings.Contains(name, "/") && strings.HasSuffix(name, ".dist-info") {
			return name, nil
		}

		if idx := strings.Index(f.Name, ".dist-info/"); idx >= 0 && !strings.Contains(f.Name[:idx], "/") {
			return f.Name[:idx] + ".dist-info", nil
		}
	}

	return "", &InvalidWheelError{Detail: "no *.dist-info/ directory found"}
}

func distInfoDirOnDisk(dest Destination, distInfoName string) string {
	return filepath.Join(dest.SitePackages, distInfoName)
}

func recordRelPath(destPath string, dest Destination) string {
	if rel, err := filepath.Rel(dest.SitePackages, destPath); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}

	if rel, err := filepath.Rel(filepath.Dir(dest.SitePackages), destPath); err == nil {
		return rel
	}

	return destPath
}

type fileCategory int

const (
	categorySitePackages fileCategory = iota
	categoryScripts
	categoryData
	categorySkip
)

// resolveDestination maps one archive member to its destination path
// and category, per spec.md §4.3 step 5. rootIsPurelib decides whether
// top-level (non-.data) entries belong in the purelib or platlib tree;
// this installer does not distinguish the two physically, so both
// collapse onto Destination.SitePackages.
func resolveDestination(name string, dest Destination, rootIsPurelib bool) (string, fileCategory) {
	const dataSuffix = ".data/"

	dataIdx := strings.Index(name, dataSuffix)
	if dataIdx == -1 {
		return filepath.Join(dest.SitePackages, name), categorySitePackages
	}

	remainder := name[dataIdx+len(dataSuffix):]

	slashIdx := strings.Index(remainder, "/")
	if slashIdx == -1 {
		return "", categorySkip
	}

	subdir, rest := remainder[:slashIdx], remainder[slashIdx+1:]
	if rest == "" {
		return "", categorySkip
	}

	switch subdir {
	case "purelib", "platlib":
		return filepath.Join(dest.SitePackages, rest), categorySitePackages
	case "scripts":
		return filepath.Join(dest.Scripts, rest), categoryScripts
	case "data":
		return filepath.Join(dest.Data, rest), categoryData
	case "headers":
		return filepath.Join(dest.Headers, rest), categoryData
	default:
		return "", categorySkip
	}
}

func baseForCategory(cat fileCategory, dest Destination) string {
	switch cat {
	case categoryScripts:
		return dest.Scripts
	case categoryData:
		return dest.Data
	default:
		return dest.SitePackages
	}
}

func extractFile(f *zip.File, destPath string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()

		return fmt.Errorf("writing %s: %w", destPath, err)
	}

	return dst.Close()
}

// rewriteShebangIfPython rewrites a pre-existing "#!python" shebang
// (the placeholder wheel-building tools emit in scripts/) to the
// install's interpreter path, per spec.md §4.3 step 6.
func rewriteShebangIfPython(path, pythonPath string) error {
	if pythonPath == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	nl := strings.IndexByte(string(b), '\n')
	if nl == -1 {
		return nil
	}

	first := string(b[:nl])
	if !strings.HasPrefix(first, "#!") {
		return nil
	}

	marker := strings.TrimPrefix(first, "#!")
	if marker != "python" && marker != "python.exe" && marker != "/usr/bin/env python" {
		return nil
	}

	rewritten := append([]byte("#!"+pythonPath), b[nl:]...)

	return os.WriteFile(path, rewritten, 0o755)
}

// isInsideDir checks that path is inside dir, guarding against
// zip-slip path traversal in archive member names.
func isInsideDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	return absPath == absDir || strings.HasPrefix(absPath, absDir+string(filepath.Separator))
}

func normalizeDistribution(name string) string {
	var b strings.Builder

	prevSep := false

	for i := 0; i < len(name); i++ {
		c := name[i]

		switch {
		case c == '-' || c == '_' || c == '.':
			if !prevSep {
				b.WriteByte('_')
				prevSep = true
			}
		default:
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}

			b.WriteByte(c)
			prevSep = false
		}
	}

	return b.String()
}

// windowsLauncherKind selects which of the six launcher kinds
// (console/gui × 32/64/arm64) a generated Windows executable would
// use; store mode and venv mode share the same selection logic.
func windowsLauncherKind(gui bool) string {
	arch := runtime.GOARCH

	kind := "t" // console ("t" for terminal, matching distlib/pip convention)
	if gui {
		kind = "w"
	}

	switch arch {
	case "arm64":
		return kind + "_arm64"
	case "386":
		return kind + "32"
	default:
		return kind + "64"
	}
}
