package tags

import (
	"fmt"
)

// Triple is one (interpreter-tag, abi-tag, platform-tag) coordinate a
// host can accept.
type Triple struct {
	Interpreter string
	ABI         string
	Platform    string
}

// IncompatibleWheelError reports that no tag triple of the host matches
// any combination present in a wheel's filename.
type IncompatibleWheelError struct {
	OS   OS
	Arch Arch
}

func (e *IncompatibleWheelError) Error() string {
	return fmt.Sprintf("incompatible wheel: no matching tag for os=%s arch=%s", e.OS.Kind, e.Arch)
}

// manylinuxAliasFloors lists the legacy aliases with the glibc 2.x minor
// each one requires, mirroring the historical manylinux1/
// 2010/2014 naming before the manylinux_M_m scheme (spec.md §4.1).
var manylinuxAliasFloors = []struct {
	alias string
	minor int // minimum glibc 2.x this alias requires
}{
	{"manylinux2014", 17},
	{"manylinux2010", 12},
	{"manylinux1", 5},
}

// platformTagsFor expands one host OS/Arch pair into the full,
// backwards-compatible set of platform tags it accepts, ordered
// most-specific (highest glibc/macOS version) first.
func platformTagsFor(os OS, arch Arch) []string {
	switch os.Kind {
	case "manylinux":
		return manylinuxPlatformTags(os, arch)
	case "musllinux":
		return musllinuxPlatformTags(os, arch)
	case "macos":
		return macOSPlatformTags(os, arch)
	case "windows":
		return []string{windowsPlatformTag(arch)}
	case "freebsd", "netbsd", "openbsd", "dragonfly":
		return []string{fmt.Sprintf("%s_%s_%s", os.Kind, os.Release, arch)}
	case "illumos":
		return []string{fmt.Sprintf("illumos_%s_%s", os.Release, arch)}
	case "haiku":
		return []string{fmt.Sprintf("haiku_%s", os.Release)}
	default:
		return nil
	}
}

func manylinuxPlatformTags(os OS, arch Arch) []string {
	var tags []string

	// glibc_2_Y floor is architecture-specific; the legacy aliases are
	// emitted only for x86/x86_64, each once the host glibc reaches its
	// floor.
	floor := manylinuxArchFloor(arch)

	for y := os.Minor; y >= floor; y-- {
		tags = append(tags, fmt.Sprintf("manylinux_2_%d_%s", y, arch))
	}

	for _, alias := range manylinuxAliasFloors {
		if os.Minor >= alias.minor && supportsLegacyAlias(arch) {
			tags = append(tags, fmt.Sprintf("%s_%s", alias.alias, arch))
		}
	}

	return tags
}

func manylinuxArchFloor(arch Arch) int {
	switch arch {
	case ArchX86_64, ArchX86:
		return 5
	default:
		// newer architectures (aarch64, ppc64le, s390x, armv7l) were
		// never supported by the legacy manylinux1/2010 floors.
		return 17
	}
}

func supportsLegacyAlias(arch Arch) bool {
	return arch == ArchX86_64 || arch == ArchX86
}

func musllinuxPlatformTags(os OS, arch Arch) []string {
	var tags []string

	for y := os.Minor; y >= 0; y-- {
		tags = append(tags, fmt.Sprintf("musllinux_%d_%d_%s", os.Major, y, arch))
	}

	return tags
}

func macOSPlatformTags(os OS, arch Arch) []string {
	var tags []string

	minMajor := 10
	if arch == ArchAArch64 {
		minMajor = 11
	}

	for major := os.Major; major >= minMajor; major-- {
		minor := 0
		if major == 10 {
			minor = 9
		}

		tags = append(tags, fmt.Sprintf("macosx_%d_%d_%s", major, minor, macOSArchName(arch)))
		tags = append(tags, fmt.Sprintf("macosx_%d_%d_universal2", major, minor))

		// arm64 at 11.x also accepts x86_64 10.x under Rosetta, and
		// universal2 wheels bridge both architectures (spec.md §4.1).
		if arch == ArchAArch64 && major == minMajor {
			tags = append(tags, "macosx_10_9_x86_64")
		}
	}

	return tags
}

func macOSArchName(arch Arch) string {
	if arch == ArchAArch64 {
		return "arm64"
	}

	return string(arch)
}

func windowsPlatformTag(arch Arch) string {
	switch arch {
	case ArchX86_64:
		return "win_amd64"
	case ArchX86:
		return "win32"
	case ArchAArch64:
		return "win_arm64"
	default:
		return "win32"
	}
}

// CompatibleTags produces the ordered list of tag triples the host at
// (pythonMajor, pythonMinor, os, arch) accepts, per the six-tier
// ordering of spec.md §4.1:
//
//  1. exact interpreter tag, ABI and no-ABI
//  2. stable ABI (abi3), walking back to the abi3 floor (3.2)
//  3. no-ABI generic-interpreter tags for every minor ≤ host
//  4. major-only fallback
//  5. pure-Python (any platform), earliest-to-latest minor
//  6. pure-Python major-only fallback
func CompatibleTags(pythonMajor, pythonMinor int, os OS, arch Arch) ([]Triple, error) {
	platformTags := platformTagsFor(os, arch)
	if len(platformTags) == 0 {
		return nil, &IncompatibleWheelError{OS: os, Arch: arch}
	}

	var tags []Triple

	exact := fmt.Sprintf("cp%d%d", pythonMajor, pythonMinor)

	for _, plat := range platformTags {
		tags = append(tags, Triple{Interpreter: exact, ABI: exact, Platform: plat})
		tags = append(tags, Triple{Interpreter: exact, ABI: "none", Platform: plat})
	}

	const abi3Floor = 2

	for minor := pythonMinor; minor >= abi3Floor; minor-- {
		cp := fmt.Sprintf("cp%d%d", pythonMajor, minor)

		for _, plat := range platformTags {
			tags = append(tags, Triple{Interpreter: cp, ABI: "abi3", Platform: plat})
		}
	}

	for minor := pythonMinor; minor >= 0; minor-- {
		py := fmt.Sprintf("py%d%d", pythonMajor, minor)

		for _, plat := range platformTags {
			tags = append(tags, Triple{Interpreter: py, ABI: "none", Platform: plat})
		}
	}

	for _, plat := range platformTags {
		tags = append(tags, Triple{Interpreter: fmt.Sprintf("py%d", pythonMajor), ABI: "none", Platform: plat})
	}

	for minor := 0; minor <= pythonMinor; minor++ {
		tags = append(tags, Triple{
			Interpreter: fmt.Sprintf("py%d%d", pythonMajor, minor),
			ABI:         "none",
			Platform:    "any",
		})
	}

	tags = append(tags, Triple{Interpreter: fmt.Sprintf("py%d", pythonMajor), ABI: "none", Platform: "any"})

	return tags, nil
}

// CanonicalTagDir returns the store's compat-tag-dir string for an
// installed wheel's winning host triple: "python-abi-platform".
func CanonicalTagDir(t Triple) string {
	return fmt.Sprintf("%s-%s-%s", t.Interpreter, t.ABI, t.Platform)
}

// BestMatch returns the index of the wheel whose first matching host
// triple has the lowest index (is most specific), and whether any wheel
// matched at all. Used when multiple candidate wheels satisfy the host
// and the most specific one should win (spec.md §4.1).
func BestMatch(wheels []Filename, hostTags []Triple) (wheelIndex int, ok bool) {
	best := len(hostTags)
	found := -1

	for i, w := range wheels {
		idx, matched := w.CompatibleWith(hostTags)
		if matched && idx < best {
			best = idx
			found = i
		}
	}

	return found, found >= 0
}
