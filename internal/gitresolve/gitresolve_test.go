package gitresolve

import (
	"context"
	"testing"
)

func fakeRunner(output string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(output), nil
	}
}

func TestResolveRef(t *testing.T) {
	sha, err := ResolveRef(context.Background(), fakeRunner("abc123\tHEAD\n"), "https://example.com/repo.git", "main")
	if err != nil {
		t.Fatalf("ResolveRef() error: %v", err)
	}

	if sha != "abc123" {
		t.Errorf("sha = %q, want %q", sha, "abc123")
	}
}

func TestResolveRefNoMatch(t *testing.T) {
	_, err := ResolveRef(context.Background(), fakeRunner(""), "https://example.com/repo.git", "missing-branch")
	if err == nil {
		t.Fatal("expected an error for an empty ls-remote result")
	}

	if _, ok := err.(*UnresolvedRefError); !ok {
		t.Errorf("expected *UnresolvedRefError, got %T: %v", err, err)
	}
}

func TestResolveRefCommandError(t *testing.T) {
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, &exitError{}
	}

	if _, err := ResolveRef(context.Background(), runner, "https://example.com/repo.git", ""); err == nil {
		t.Error("expected an error when the runner fails")
	}
}

type exitError struct{}

func (e *exitError) Error() string { return "exit status 128" }
