// Package version holds build metadata stamped in via -ldflags.
package version

import "fmt"

// Overridden at build time:
//
//	go build -ldflags "-X leviatan/internal/version.Version=1.2.0 \
//	  -X leviatan/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "1.0.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, with an abbreviated commit when one was
// stamped in.
func Info() string {
	if len(Commit) > 7 && Commit != "unknown" {
		return fmt.Sprintf("%s (%s)", Version, Commit[:7])
	}
	return Version
}

// Full returns the multi-line form shown by --version.
func Full() string {
	return fmt.Sprintf("leviatan version %s\nCommit: %s\nBuilt: %s", Version, Commit, BuildDate)
}
