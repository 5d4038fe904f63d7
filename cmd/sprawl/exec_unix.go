//go:build !windows

package main

import "syscall"

// replaceProcess calls execve, replacing this process image entirely
// with path. No parent process survives to wait on it; this is the
// "platform-native program replacement" dispatch mode for an installed
// console/gui script.
func replaceProcess(path string, argv, envv []string) error {
	return syscall.Exec(path, argv, envv)
}
