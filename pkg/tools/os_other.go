//go:build !windows

package tools

import "runtime"

// OsVersion returns the operating system name; versions are only detected on windows
func OsVersion() (string, int, int, int) {
	return runtime.GOOS, 0, 0, 0
}
