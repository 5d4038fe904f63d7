package tags_test

import (
	"testing"

	"github.com/sprawl-py/sprawl/internal/tags"
)

func contains(triples []tags.Triple, t tags.Triple) bool {
	for _, c := range triples {
		if c == t {
			return true
		}
	}

	return false
}

// TestCompatibleTagsManylinux exercises end-to-end scenario 1 from
// spec.md §8: python=(3,8), glibc 2.31, x86_64.
func TestCompatibleTagsManylinux(t *testing.T) {
	host := tags.OS{Kind: "manylinux", Major: 2, Minor: 31}

	triples, err := tags.CompatibleTags(3, 8, host, tags.ArchX86_64)
	if err != nil {
		t.Fatalf("CompatibleTags() error: %v", err)
	}

	mustContain := []tags.Triple{
		{Interpreter: "cp38", ABI: "cp38", Platform: "manylinux_2_17_x86_64"},
		{Interpreter: "cp38", ABI: "abi3", Platform: "manylinux_2_17_x86_64"},
		{Interpreter: "py38", ABI: "none", Platform: "any"},
		{Interpreter: "cp38", ABI: "cp38", Platform: "manylinux2014_x86_64"},
		{Interpreter: "cp38", ABI: "cp38", Platform: "manylinux2010_x86_64"},
		{Interpreter: "cp38", ABI: "cp38", Platform: "manylinux1_x86_64"},
	}

	for _, want := range mustContain {
		if !contains(triples, want) {
			t.Errorf("CompatibleTags() missing %+v", want)
		}
	}

	absent := tags.Triple{Interpreter: "cp38", ABI: "cp38", Platform: "win_amd64"}
	if contains(triples, absent) {
		t.Errorf("CompatibleTags() unexpectedly contains %+v", absent)
	}
}

func TestCompatibleTagsUnsupportedOS(t *testing.T) {
	if _, err := tags.CompatibleTags(3, 8, tags.OS{Kind: "unknown"}, tags.ArchX86_64); err == nil {
		t.Fatal("expected error for unrecognized OS kind")
	}
}

func TestBestMatchPrefersMostSpecific(t *testing.T) {
	host, err := tags.CompatibleTags(3, 8, tags.OS{Kind: "manylinux", Major: 2, Minor: 17}, tags.ArchX86_64)
	if err != nil {
		t.Fatalf("CompatibleTags() error: %v", err)
	}

	generic, err := tags.Parse("pkg-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	specific, err := tags.Parse("pkg-1.0-cp38-cp38-manylinux_2_17_x86_64.whl")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	idx, ok := tags.BestMatch([]tags.Filename{generic, specific}, host)
	if !ok {
		t.Fatal("expected a match")
	}

	if idx != 1 {
		t.Errorf("BestMatch() = %d, want 1 (the more specific cp38 wheel)", idx)
	}
}
