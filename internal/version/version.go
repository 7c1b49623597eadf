// Package version carries the build version, set via ldflags on release
// builds.
package version

var Version = "dev"
