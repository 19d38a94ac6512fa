// Package version holds the build version, overridden at link time with
// -ldflags "-X dtsresolve/internal/shared/version.Version=<v>".
package version

var Version = "0.1.0-dev"
