package tools

import (
	"github.com/gonutz/w32/v2"
)

// OsVersion returns the operating system name and its major, minor and patch version.
// Windows 7 and Server 2008 R2 report 6.1, Windows 8.1 and later report at least 6.3.
func OsVersion() (string, int, int, int) {
	version := w32.GetVersion()
	major, minor := version&0xFF, version&0xFF00>>8
	return "windows", int(major), int(minor), 0
}
