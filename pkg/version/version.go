// Package version holds build information for retailbi.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X retail-bi/pkg/version.Version=...".
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func Info() string {
	return fmt.Sprintf("retailbi %s (commit: %s, built: %s, go: %s)",
		Version, Commit, BuildDate, runtime.Version())
}

func Short() string {
	return Version
}
