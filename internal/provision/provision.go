// Package provision locates an already-cached standalone Python
// interpreter in the interpreters cache beside the store. Actually acquiring
// an interpreter distribution (download, verify, unpack) is the
// standalone-Python-provisioner external collaborator spec.md §6 places
// out of this system's scope; this package only knows how to find what
// such a collaborator is expected to have already placed on disk.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprawl-py/sprawl/internal/launcher"
)

// NotProvisionedError reports that no interpreter is cached for a
// requested version.
type NotProvisionedError struct {
	Version launcher.PythonVersion
	Home    string
}

func (e *NotProvisionedError) Error() string {
	return fmt.Sprintf("python %s is not provisioned at %s; run the interpreter provisioner first", e.Version, e.Home)
}

// Provisioner resolves a Python version to a provisioned interpreter's
// binary path and home directory.
type Provisioner interface {
	Provision(ctx context.Context, v launcher.PythonVersion) (binary, home string, err error)
}

// CacheDir looks up interpreters in the "interpreters" directory beside
// the store root Root (<root>/../interpreters/<M>.<m>/..., the same
// parent the store lock uses), spec.md §6's
// "<cache-root>/interpreters/<M>.<m>/..." layout.
type CacheDir struct {
	Root string
}

// Provision returns the binary and home for an already-cached
// interpreter, or NotProvisionedError if nothing is cached for v.
func (c CacheDir) Provision(_ context.Context, v launcher.PythonVersion) (string, string, error) {
	home := filepath.Join(c.Root, "..", "interpreters", v.String())

	binary := filepath.Join(home, "bin", "python3")
	if _, err := os.Stat(home); err != nil {
		return "", "", &NotProvisionedError{Version: v, Home: home}
	}

	return binary, home, nil
}
