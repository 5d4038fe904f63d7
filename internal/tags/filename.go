// Package tags implements the wheel-filename parser and the host
// tag-compatibility engine (spec.md §4.1).
package tags

import (
	"fmt"
	"strings"
)

// Filename holds the five fields parsed out of a wheel's basename:
// distribution, version, and three non-empty tag sets. Constructed only
// by Parse; never mutated afterwards.
type Filename struct {
	Distribution string
	Version      string
	Interpreter  []string
	ABI          []string
	Platform     []string
}

// InvalidFilenameError reports a wheel basename that does not fit the
// PEP 427 naming convention.
type InvalidFilenameError struct {
	Filename string
	Reason   string
}

func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("invalid wheel filename %q: %s", e.Filename, e.Reason)
}

// Parse parses a wheel's basename into its component fields. Accepts
// both the four-part form and the five-part form carrying an optional
// build tag (silently dropped — spec.md §4.1, §8 boundary case).
func Parse(filename string) (Filename, error) {
	basename := filename

	trimmed, ok := strings.CutSuffix(basename, ".whl")
	if !ok {
		return Filename{}, &InvalidFilenameError{Filename: filename, Reason: "must end with .whl"}
	}

	parts := strings.Split(trimmed, "-")

	switch len(parts) {
	case 5:
		// distribution-version-python-abi-platform
	case 6:
		// distribution-version-build-python-abi-platform; build tag dropped.
		parts = append(parts[:2], parts[3:]...)
	default:
		return Filename{}, &InvalidFilenameError{
			Filename: filename,
			Reason:   fmt.Sprintf("expected 4 or 5 \"-\"-separated segments after stripping .whl, got %d", len(parts)-1),
		}
	}

	return Filename{
		Distribution: parts[0],
		Version:      parts[1],
		Interpreter:  strings.Split(parts[2], "."),
		ABI:          strings.Split(parts[3], "."),
		Platform:     strings.Split(parts[4], "."),
	}, nil
}

// normalizedName normalizes per PEP 503 — lowercase, runs of [-_.]
// collapsed to a single hyphen — for NormalizedDistribution.
func normalizedName(name string) string {
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

// NormalizedDistribution returns the PEP 503-normalized distribution name.
func (f Filename) NormalizedDistribution() string {
	return normalizedName(f.Distribution)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}

	return false
}

// CompatibleWith reports whether this wheel matches at least one of the
// host's compatible tag triples, returning the index of the first (most
// specific) matching triple. ok is false if no triple matches.
func (f Filename) CompatibleWith(hostTags []Triple) (index int, ok bool) {
	for i, t := range hostTags {
		if contains(f.Interpreter, t.Interpreter) && contains(f.ABI, t.ABI) && contains(f.Platform, t.Platform) {
			return i, true
		}
	}

	return -1, false
}
