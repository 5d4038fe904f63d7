// Package markers normalizes PEP 503 distribution names and evaluates
// PEP 508 environment markers against a marker environment.
//
// The term-evaluation grammar and the version/string comparison split are
// adapted from the teacher's internal/resolver package (requirement.go),
// extended with extra-membership tests ("extra == \"docs\"") as required
// by the graph evaluator (spec.md §4.4).
package markers

import (
	"regexp"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Env holds the environment variables PEP 508 markers may reference.
type Env struct {
	PythonVersion     string // e.g. "3.12"
	PythonFullVersion string
	SysPlatform       string // e.g. "linux", "darwin", "win32"
	OsName            string // e.g. "posix", "nt"
	PlatformMachine   string // e.g. "x86_64", "arm64"
	ImplementationName string // e.g. "cpython"

	// ActiveExtras are the extras currently opted into by the consumer
	// evaluating this marker (spec.md §4.4: "extra == \"<X>\"" applies
	// iff X is a member of this set).
	ActiveExtras map[string]bool
}

// HasExtra reports whether name is an active extra.
func (e Env) HasExtra(name string) bool {
	return e.ActiveExtras != nil && e.ActiveExtras[name]
}

// NormalizeName normalizes a Python distribution name per PEP 503:
// lowercase, runs of [-_.] collapsed to a single hyphen.
func NormalizeName(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevHyphen := false

	for i := range len(name) {
		switch name[i] {
		case '-', '_', '.':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		default:
			b.WriteByte(name[i])
			prevHyphen = false
		}
	}

	return b.String()
}

// Eval evaluates a PEP 508 environment marker expression against env.
// An empty marker always applies.
func Eval(marker string, env Env) bool {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return true
	}

	for _, orGroup := range splitOutside(marker, " or ") {
		allTrue := true

		for _, term := range splitOutside(strings.TrimSpace(orGroup), " and ") {
			if !evalTerm(strings.TrimSpace(term), env) {
				allTrue = false

				break
			}
		}

		if allTrue {
			return true
		}
	}

	return false
}

// IsExtraTest reports whether marker is exactly a single `extra == "X"`
// (or `"X" == extra`) test and, if so, returns X. Used by the graph
// evaluator to distinguish an extras-gated dependency from one guarded
// by an ordinary environment predicate (spec.md §4.4).
func IsExtraTest(marker string) (extra string, ok bool) {
	m := extraTermRe.FindStringSubmatch(strings.TrimSpace(marker))
	if m == nil {
		return "", false
	}

	if m[1] != "" {
		return unquote(m[1]), true
	}

	return unquote(m[2]), true
}

var extraTermRe = regexp.MustCompile(`^extra\s*==\s*('[^']*'|"[^"]*")$|^('[^']*'|"[^"]*")\s*==\s*extra$`)

var markerTermRe = regexp.MustCompile(
	`^\s*([\w.]+|"[^"]*"|'[^']*')\s*(>=|<=|!=|==|~=|>|<|not\s+in|in)\s*([\w.]+|"[^"]*"|'[^']*')\s*$`,
)

func evalTerm(term string, env Env) bool {
	m := markerTermRe.FindStringSubmatch(term)
	if m == nil {
		return true // unrecognized term shape: treat as satisfied rather than fail the whole graph
	}

	lVar := unquote(m[1])
	op := m[2]
	rVar := unquote(m[3])

	if lVar == "extra" || rVar == "extra" {
		extra := rVar
		if lVar == "extra" {
			extra = rVar
		} else {
			extra = lVar
		}

		has := env.HasExtra(extra)

		switch op {
		case "==":
			return has
		case "!=":
			return !has
		default:
			return false
		}
	}

	left := resolveValue(m[1], env)
	right := resolveValue(m[3], env)

	if isVersionVariable(lVar) || isVersionVariable(rVar) {
		return compareVersion(left, op, right)
	}

	return compareString(left, op, right)
}

func resolveValue(token string, env Env) string {
	token = unquote(token)

	switch token {
	case "python_version":
		return env.PythonVersion
	case "python_full_version":
		if env.PythonFullVersion != "" {
			return env.PythonFullVersion
		}

		return env.PythonVersion
	case "sys_platform":
		return env.SysPlatform
	case "os_name":
		return env.OsName
	case "platform_machine":
		return env.PlatformMachine
	case "implementation_name":
		return env.ImplementationName
	default:
		return token
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}

	return s
}

func isVersionVariable(name string) bool {
	return name == "python_version" || name == "python_full_version"
}

func compareVersion(left, op, right string) bool {
	lv, err1 := pep440.Parse(left)
	rv, err2 := pep440.Parse(right)

	if err1 != nil || err2 != nil {
		return compareString(left, op, right)
	}

	cmp := lv.Compare(rv)

	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "~=":
		return cmp >= 0
	default:
		return false
	}
}

func compareString(left, op, right string) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "in":
		return strings.Contains(right, left)
	case "not in":
		return !strings.Contains(right, left)
	default:
		return left == right
	}
}

// splitOutside splits s on sep, ignoring occurrences inside parentheses
// or quotes.
func splitOutside(s, sep string) []string {
	var parts []string

	depth := 0
	inQuote := byte(0)
	start := 0

	for i := 0; i < len(s); i++ {
		switch {
		case inQuote != 0:
			if s[i] == inQuote {
				inQuote = 0
			}
		case s[i] == '"' || s[i] == '\'':
			inQuote = s[i]
		case s[i] == '(':
			depth++
		case s[i] == ')':
			depth--
		case depth == 0 && i+len(sep) <= len(s) && s[i:i+len(sep)] == sep:
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}

	parts = append(parts, s[start:])

	return parts
}
