// Package buildinfo holds version information injected at build time:
//
//	go build -ldflags "-X github.com/matzehuels/gangsheet/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/gangsheet/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/gangsheet/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

var (
	Version = "dev"     // semantic version, e.g. "v1.2.3"
	Commit  = "none"    // git commit SHA
	Date    = "unknown" // build timestamp
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent identifies outbound requests, e.g. "gangsheet/v1.2.3".
func UserAgent() string {
	return "gangsheet/" + Version
}
