// Package version holds build identification stamped in at link time and
// logged when the launch monitor starts.
package version

var (
	// Version is the launch monitor release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
