package manifest_test

import (
	"testing"

	"github.com/sprawl-py/sprawl/internal/manifest"
)

const lockfileV1 = `
[[package]]
name = "flask"
version = "2.0.1"
optional = false
python-versions = ">=3.6"

[package.dependencies]
werkzeug = ">=2.0"
click = { version = ">=7.1.2", markers = "python_version >= \"3.7\"" }

[metadata]
lock-version = "1.1"
python-versions = ">=3.6"
content-hash = "deadbeef"

[metadata.files]
flask = [
    { file = "flask-2.0.1-py3-none-any.whl", hash = "sha256:aaaa" },
]
`

const lockfileV2 = `
[[package]]
name = "flask"
version = "2.0.1"
optional = false
python-versions = ">=3.6"

[[package.files]]
file = "flask-2.0.1-py3-none-any.whl"
hash = "sha256:aaaa"

[metadata]
lock-version = "2.0"
`

func TestParseLockfileV1HashTable(t *testing.T) {
	lf, err := manifest.ParseLockfile([]byte(lockfileV1))
	if err != nil {
		t.Fatalf("ParseLockfile() error: %v", err)
	}

	pkg, ok := lf.PackageByName("Flask")
	if !ok {
		t.Fatal("PackageByName(Flask) not found")
	}

	if pkg.Version != "2.0.1" {
		t.Errorf("Version = %q", pkg.Version)
	}

	dep, ok := pkg.Dependencies["click"]
	if !ok {
		t.Fatal("missing click dependency")
	}

	if dep.Shape() != "marker" {
		t.Errorf("click dependency Shape() = %q, want marker", dep.Shape())
	}

	files := lf.FilenamesFor("flask")
	if len(files) != 1 || files[0].File != "flask-2.0.1-py3-none-any.whl" {
		t.Errorf("FilenamesFor(flask) = %+v", files)
	}
}

func TestParseLockfileV2PerPackageFiles(t *testing.T) {
	lf, err := manifest.ParseLockfile([]byte(lockfileV2))
	if err != nil {
		t.Fatalf("ParseLockfile() error: %v", err)
	}

	files := lf.FilenamesFor("flask")
	if len(files) != 1 || files[0].Hash != "sha256:aaaa" {
		t.Errorf("FilenamesFor(flask) = %+v", files)
	}
}

func TestDependencyShapes(t *testing.T) {
	bare := manifest.Dependency{Bare: ">=1.0"}
	if bare.Shape() != "bare" {
		t.Errorf("bare Shape() = %q", bare.Shape())
	}

	alt := manifest.Dependency{Alternatives: []manifest.DependencyAlternative{{Constraint: ">=1.0", Marker: "sys_platform == \"win32\""}}}
	if alt.Shape() != "alternatives" {
		t.Errorf("alternatives Shape() = %q", alt.Shape())
	}
}
