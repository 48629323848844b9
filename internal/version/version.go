package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String is the one-line banner printed by `llmgate version`.
func String() string {
	return fmt.Sprintf("llmgate %s (commit: %s, built: %s, %s %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on upstream provider requests.
func UserAgent() string {
	return "llmgate/" + Version
}
