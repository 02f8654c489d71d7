package config

import "strings"

// Version is stamped by the release build via -ldflags; the default marks
// development builds.
var Version = "0.3.1"

// ProjectFileName is the optional per-project configuration file looked up
// next to the script being run.
const ProjectFileName = "hemlock.yaml"

// Process exit codes for the CLI driver. Compile failures and uncaught
// runtime errors share a code; exit(n) overrides both.
const (
	ExitOK           = 0
	ExitCompileError = 1
	ExitRuntimeError = 1
)

// SourceFileExt is the canonical script extension. SourceFileExtensions
// lists every spelling the driver accepts, canonical first.
const SourceFileExt = ".hk"

var SourceFileExtensions = []string{SourceFileExt, ".hemlock"}

// HasSourceExt reports whether path ends in a recognized script extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TrimSourceExt strips a recognized script extension for display purposes
// (stack traces, trace headers); other names pass through untouched.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
