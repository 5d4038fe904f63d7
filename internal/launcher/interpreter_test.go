package launcher_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/sprawl-py/sprawl/internal/launcher"
)

func TestLibraryPathMatchesPlatformConvention(t *testing.T) {
	paths := launcher.LibraryPath("/opt/python", launcher.PythonVersion{Major: 3, Minor: 11})
	if len(paths) == 0 {
		t.Fatal("expected at least one candidate path")
	}

	switch runtime.GOOS {
	case "darwin":
		if !strings.HasSuffix(paths[0], "libpython3.11.dylib") {
			t.Errorf("paths[0] = %q, want *.dylib suffix", paths[0])
		}
	case "windows":
		if !strings.HasSuffix(paths[0], "python311.dll") {
			t.Errorf("paths[0] = %q, want python311.dll suffix", paths[0])
		}
	default:
		if !strings.HasSuffix(paths[0], "libpython3.so") {
			t.Errorf("paths[0] = %q, want libpython3.so suffix", paths[0])
		}
	}
}

func TestLoadMissingLibraryReturnsLibraryPathError(t *testing.T) {
	_, err := launcher.Load(t.TempDir(), launcher.PythonVersion{Major: 3, Minor: 11})
	if err == nil {
		t.Fatal("expected LibraryPathError for a home with no interpreter installed")
	}

	var pathErr *launcher.LibraryPathError
	if !asLibraryPathError(err, &pathErr) {
		t.Errorf("error = %v, want *LibraryPathError", err)
	}
}

func asLibraryPathError(err error, target **launcher.LibraryPathError) bool {
	if e, ok := err.(*launcher.LibraryPathError); ok {
		*target = e

		return true
	}

	return false
}
