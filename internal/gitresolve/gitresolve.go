// Package gitresolve pins a git-sourced dependency's ref (a branch,
// tag, or short-hand) to an exact commit SHA via `git ls-remote`,
// without cloning. Resolving the rest of a dependency graph against an
// arbitrary VCS, building from source, and fetching from a package
// index are all external collaborators this system delegates to; this
// package covers only the one git-specific lookup a lockfile-writing
// front end needs that has no other natural home.
package gitresolve

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// UnresolvedRefError reports that `git ls-remote` returned no matching
// ref for the requested repository.
type UnresolvedRefError struct {
	RepoURL string
	Ref     string
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("no ref %q found at %s", e.Ref, e.RepoURL)
}

// Runner executes a command and returns its stdout, injectable
// for tests the same way internal/tags.Runner is.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ResolveRef resolves ref (a branch or tag name; empty means HEAD) at
// repoURL to its current commit SHA, via a remote-only `git ls-remote`
// call that requires no local clone.
func ResolveRef(ctx context.Context, run Runner, repoURL, ref string) (string, error) {
	if run == nil {
		run = defaultRunner
	}

	args := []string{"ls-remote", repoURL}
	if ref != "" {
		args = append(args, ref)
	} else {
		args = append(args, "HEAD")
	}

	out, err := run(ctx, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git ls-remote %s %s: %w", repoURL, ref, err)
	}

	line, _, _ := bytes.Cut(out, []byte("\n"))

	fields := strings.Fields(string(line))
	if len(fields) < 1 || fields[0] == "" {
		return "", &UnresolvedRefError{RepoURL: repoURL, Ref: ref}
	}

	return fields[0], nil
}
