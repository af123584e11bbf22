// Package version exposes build metadata injected at link time.
package version

import "fmt"

var (
	// Version is overridden via -ldflags at release build time.
	Version = "dev"
	Commit  = "none"
)

// Full returns the version with its commit suffix.
func Full() string {
	return fmt.Sprintf("chatrecap %s (%s)", Version, Commit)
}
