// Package version provides build-time version information.
package version

import "fmt"

// Name is the application's display name.
const Name = "Box Annotator"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.3.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// String returns the version line shown in the About dialog and logs.
func String() string {
	if GitCommit == "unknown" {
		return fmt.Sprintf("%s v%s", Name, Version)
	}
	return fmt.Sprintf("%s v%s (%s, built %s)", Name, Version, GitCommit, BuildTime)
}
