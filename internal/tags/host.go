package tags

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// OS identifies one of the host operating-system variants spec.md §4.1
// enumerates.
type OS struct {
	Kind  string // "manylinux", "musllinux", "macos", "windows", "freebsd", "netbsd", "openbsd", "dragonfly", "illumos", "haiku"
	Major int    // glibc/musl/macOS major version, where applicable
	Minor int    // glibc/musl/macOS minor version, where applicable
	Release string // uname release string, for the BSDs/illumos/Haiku
}

// Arch identifies a host CPU architecture variant.
type Arch string

const (
	ArchX86        Arch = "x86"
	ArchX86_64     Arch = "x86_64"
	ArchAArch64    Arch = "aarch64"
	ArchARMv7L     Arch = "armv7l"
	ArchPowerPC64  Arch = "powerpc64"
	ArchPowerPC64LE Arch = "powerpc64le"
	ArchS390X      Arch = "s390x"
)

// VersionDetectionError reports a failure to determine the host's libc
// or OS version — fatal for the process per spec.md §7.
type VersionDetectionError struct {
	Detail string
}

func (e *VersionDetectionError) Error() string {
	return fmt.Sprintf("version detection failed: %s", e.Detail)
}

// Runner executes a command and returns its stdout, injectable
// for tests exactly as the teacher's python.CommandRunner is.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var glibcLDRe = regexp.MustCompile(`ld-(\d{1,3})\.(\d{1,3})\.so`)

// DetectOS classifies the host operating system, following spec.md
// §4.1's detection policy.
func DetectOS(ctx context.Context, run Runner) (OS, error) {
	if run == nil {
		run = defaultRunner
	}

	switch runtime.GOOS {
	case "linux":
		return detectLinux(run)
	case "darwin":
		return detectMacOS(run)
	case "windows":
		return OS{Kind: "windows"}, nil
	case "freebsd", "netbsd", "openbsd", "dragonfly":
		release, err := unameRelease(run)
		if err != nil {
			return OS{}, err
		}

		return OS{Kind: runtime.GOOS, Release: release}, nil
	case "illumos", "solaris":
		release, err := unameRelease(run)
		if err != nil {
			return OS{}, err
		}

		return OS{Kind: "illumos", Release: release}, nil
	default:
		if runtime.GOOS == "plan9" {
			return OS{}, &VersionDetectionError{Detail: "unsupported OS plan9"}
		}

		release, err := unameRelease(run)
		if err == nil && strings.EqualFold(release, "haiku") {
			return OS{Kind: "haiku", Release: release}, nil
		}

		return OS{}, &VersionDetectionError{Detail: fmt.Sprintf("unsupported OS %s", runtime.GOOS)}
	}
}

// detectLinux takes the dynamic loader from findDynamicLoader and
// classifies musl (via the loader's no-argument stderr banner) or glibc
// (via the loader's symlink target name).
func detectLinux(run Runner) (OS, error) {
	loader, err := findDynamicLoader()
	if err != nil {
		return OS{}, &VersionDetectionError{Detail: err.Error()}
	}

	if major, minor, ok := muslVersion(loader); ok {
		return OS{Kind: "musllinux", Major: major, Minor: minor}, nil
	}

	target, err := os.Readlink(loader)
	if err == nil {
		if m := glibcLDRe.FindStringSubmatch(filepathBase(target)); m != nil {
			major, _ := strconv.Atoi(m[1])
			minor, _ := strconv.Atoi(m[2])

			return OS{Kind: "manylinux", Major: major, Minor: minor}, nil
		}
	}

	return OS{}, &VersionDetectionError{Detail: "could not classify glibc nor musl from dynamic loader " + loader}
}

func filepathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}

	return p
}

// findDynamicLoader returns the first path in a fixed list of
// conventional loader locations that exists. It does not read the
// PT_INTERP header of any binary, so a loader at another path is not
// found.
func findDynamicLoader() (string, error) {
	candidates := []string{
		"/lib64/ld-linux-x86-64.so.2",
		"/lib/ld-linux-aarch64.so.1",
		"/lib/ld-musl-x86_64.so.1",
		"/lib/ld-musl-aarch64.so.1",
		"/lib/ld-linux.so.3",
	}

	for _, c := range candidates {
		if _, err := os.Lstat(c); err == nil {
			return c, nil
		}
	}

	return "", fmt.Errorf("no known dynamic loader path found")
}

// muslVersion runs the loader with no arguments and parses its stderr
// banner ("musl libc... Version M.m") per spec.md §4.1.
func muslVersion(loader string) (major, minor int, ok bool) {
	out, _ := exec.Command(loader).CombinedOutput() //nolint:gosec // fixed set of loader candidates

	scanner := bufio.NewScanner(strings.NewReader(string(out)))

	versionRe := regexp.MustCompile(`Version (\d+)\.(\d+)`)

	for scanner.Scan() {
		if m := versionRe.FindStringSubmatch(scanner.Text()); m != nil {
			maj, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])

			return maj, min, true
		}
	}

	return 0, 0, false
}

func unameRelease(run Runner) (string, error) {
	out, err := run(context.Background(), "uname", "-r")
	if err != nil {
		return "", &VersionDetectionError{Detail: fmt.Sprintf("uname -r: %v", err)}
	}

	return strings.TrimSpace(string(out)), nil
}

var macOSVersionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// detectMacOS runs `sw_vers -productVersion` and parses its major.minor
// version; it does not read the system version plist file itself.
func detectMacOS(run Runner) (OS, error) {
	out, err := run(context.Background(), "sw_vers", "-productVersion")
	if err != nil {
		return OS{}, &VersionDetectionError{Detail: fmt.Sprintf("sw_vers -productVersion: %v", err)}
	}

	m := macOSVersionRe.FindStringSubmatch(strings.TrimSpace(string(out)))
	if m == nil {
		return OS{}, &VersionDetectionError{Detail: "could not parse macOS product version"}
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])

	return OS{Kind: "macos", Major: major, Minor: minor}, nil
}

// DetectArch maps the Go runtime architecture constant onto one of the
// wheel-tag architecture variants spec.md §4.1 enumerates.
func DetectArch() (Arch, error) {
	switch runtime.GOARCH {
	case "386":
		return ArchX86, nil
	case "amd64":
		return ArchX86_64, nil
	case "arm64":
		return ArchAArch64, nil
	case "arm":
		return ArchARMv7L, nil
	case "ppc64":
		return ArchPowerPC64, nil
	case "ppc64le":
		return ArchPowerPC64LE, nil
	case "s390x":
		return ArchS390X, nil
	default:
		return "", &VersionDetectionError{Detail: fmt.Sprintf("unsupported architecture %s", runtime.GOARCH)}
	}
}
