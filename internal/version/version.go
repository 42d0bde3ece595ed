// Package version holds the build version string, overridable via -ldflags.
package version

// Version is the warden release version. Overridden at build time with
// -ldflags "-X github.com/wardenhq/warden/internal/version.Version=...".
var Version = "dev"
