// Package version carries the build identity stamped in via ldflags.
package version

import "fmt"

var (
	// Version is the tool version, e.g. "v3.0.1".
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identity on one line.
func String() string {
	return fmt.Sprintf("aad %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
