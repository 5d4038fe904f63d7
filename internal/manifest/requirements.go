// Package manifest parses the three manifest shapes spec.md §4.2 defines:
// a pip-style requirements list, a Poetry-style lockfile, and a Poetry
// project manifest. All three are text-only and never perform I/O beyond
// reading the named file and the files it references.
package manifest

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Hash is one `--hash algo:digest` pin attached to a requirement line.
type Hash struct {
	Algorithm string
	Digest    string
}

// Requirement is one parsed, unresolved dependency line.
type Requirement struct {
	Raw   string // the PEP 508 requirement text, unparsed
	Hashes []Hash
}

// ParseError reports a malformed line in a parsed manifest.
type ParseError struct {
	Message string
	Line    int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
}

// IncludeError reports a failure to resolve a `-r`/`-c` referenced file.
type IncludeError struct {
	Path  string
	Cause error
}

func (e *IncludeError) Error() string {
	return fmt.Sprintf("including %s: %v", e.Path, e.Cause)
}

func (e *IncludeError) Unwrap() error { return e.Cause }

// RequirementsList is the result of parsing a requirements file: the
// requirements to install plus any constraints pulled in via `-c`.
type RequirementsList struct {
	Requirements []Requirement
	Constraints  []string
	Editable     []Requirement
}

var hashPrefix = "--hash"

// ParseRequirements parses a pip-style requirements file rooted at
// workingDir (propagated unchanged through `-r`/`-c` recursion — not the
// including file's own directory, per spec.md §4.2). logger receives a
// warning if the file contains no statements at all (spec.md §8).
func ParseRequirements(path, workingDir string, logger *slog.Logger) (RequirementsList, error) {
	if logger == nil {
		logger = slog.Default()
	}

	list, statementCount, err := parseRequirementsFile(path, workingDir, logger, map[string]bool{})
	if err != nil {
		return RequirementsList{}, err
	}

	if statementCount == 0 {
		logger.Warn("requirements file contains no statements", slog.String("path", path))
	}

	return list, nil
}

func parseRequirementsFile(path, workingDir string, logger *slog.Logger, seen map[string]bool) (RequirementsList, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return RequirementsList{}, 0, fmt.Errorf("opening requirements file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var (
		result     RequirementsList
		statements int
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0

	var pending strings.Builder

	flush := func(logical string, lineNo int) error {
		logical = strings.TrimSpace(logical)
		if logical == "" || strings.HasPrefix(logical, "#") {
			return nil
		}

		statements++

		switch {
		case strings.HasPrefix(logical, "-r"):
			incPath := resolveIncludePath(workingDir, trimSep(logical, "-r"))
			if seen[incPath] {
				return nil // a file already included is skipped, which also breaks inclusion cycles
			}

			seen[incPath] = true

			included, _, err := parseRequirementsFile(incPath, workingDir, logger, seen)
			if err != nil {
				return &IncludeError{Path: incPath, Cause: err}
			}

			result.Requirements = append(result.Requirements, included.Requirements...)
			result.Constraints = append(result.Constraints, included.Constraints...)
			result.Editable = append(result.Editable, included.Editable...)

			return nil

		case strings.HasPrefix(logical, "-c"):
			incPath := resolveIncludePath(workingDir, trimSep(logical, "-c"))

			b, err := os.ReadFile(incPath)
			if err != nil {
				return &IncludeError{Path: incPath, Cause: err}
			}

			for _, line := range strings.Split(string(b), "\n") {
				line = strings.TrimSpace(stripComment(line))
				if line != "" {
					result.Constraints = append(result.Constraints, line)
				}
			}

			return nil

		case strings.HasPrefix(logical, "-e"):
			body := trimSep(logical, "-e")

			req, err := parseRequirementLine(body, lineNo)
			if err != nil {
				return err
			}

			result.Editable = append(result.Editable, req)

			return nil

		default:
			req, err := parseRequirementLine(logical, lineNo)
			if err != nil {
				return err
			}

			result.Requirements = append(result.Requirements, req)

			return nil
		}
	}

	for scanner.Scan() {
		lineNo++

		raw := scanner.Text()
		raw = stripComment(raw)

		if strings.HasSuffix(strings.TrimRight(raw, " \t"), "\\") {
			pending.WriteString(strings.TrimSuffix(strings.TrimRight(raw, " \t"), "\\"))
			pending.WriteByte(' ')

			continue
		}

		pending.WriteString(raw)

		if err := flush(pending.String(), lineNo); err != nil {
			return RequirementsList{}, 0, err
		}

		pending.Reset()
	}

	if err := scanner.Err(); err != nil {
		return RequirementsList{}, 0, fmt.Errorf("reading %s: %w", path, err)
	}

	return result, statements, nil
}

func stripComment(line string) string {
	inQuote := byte(0)

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == '#':
			return line[:i]
		}
	}

	return line
}

func trimSep(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	s = strings.TrimPrefix(s, "=")

	return strings.TrimSpace(s)
}

func resolveIncludePath(workingDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(workingDir, p)
}

func parseRequirementLine(line string, lineNo int) (Requirement, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Requirement{}, &ParseError{Message: "empty requirement", Line: lineNo}
	}

	var (
		reqParts []string
		hashes   []Hash
	)

	for i := 0; i < len(fields); i++ {
		if fields[i] == hashPrefix {
			if i+1 >= len(fields) {
				return Requirement{}, &ParseError{Message: "--hash missing value", Line: lineNo}
			}

			algo, digest, ok := strings.Cut(fields[i+1], ":")
			if !ok {
				return Requirement{}, &ParseError{Message: "malformed --hash value " + fields[i+1], Line: lineNo}
			}

			hashes = append(hashes, Hash{Algorithm: algo, Digest: digest})
			i++

			continue
		}

		reqParts = append(reqParts, fields[i])
	}

	if len(reqParts) == 0 {
		return Requirement{}, &ParseError{Message: "requirement has no specifier text", Line: lineNo}
	}

	return Requirement{Raw: strings.Join(reqParts, " "), Hashes: hashes}, nil
}
