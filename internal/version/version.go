// Package version carries the build metadata stamped in by the release
// pipeline via -ldflags.
package version

var (
	// Version is the SDK release version.
	Version = "dev"
	// GitSHA is the git commit the build came from.
	GitSHA = "unknown"
)

// UserAgent is the value the API client sends in the User-Agent header.
func UserAgent() string {
	return "gridline-go/" + Version
}
