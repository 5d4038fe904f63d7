// Package python detects an ambient, traditionally-activated virtualenv
// so the launcher can warn that sprawl bypasses it rather than silently
// fighting over PYTHONPATH (spec.md §6 enumerates VIRTUAL_ENV among the
// environment variables the system reads).
package python

// EnvLookup looks up an environment variable.
type EnvLookup func(string) string

// AmbientVirtualEnv reports the path of a traditionally-activated
// virtualenv, if VIRTUAL_ENV is set in the caller's environment. sprawl
// never installs into or activates such an environment itself; it only
// surfaces this so callers can warn the user their shell has one active.
func AmbientVirtualEnv(getenv EnvLookup) (path string, ok bool) {
	venv := getenv("VIRTUAL_ENV")
	if venv == "" {
		return "", false
	}

	return venv, true
}
