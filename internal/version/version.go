// Package version exposes build metadata for the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Overridable via ldflags at build time; falls back to module build info.
var (
	// Version is the release version.
	Version = "dev"
	// CommitHash is the git revision the binary was built from.
	CommitHash = ""
	// BuildTime is when the binary was built.
	BuildTime = ""
)

// GetInfo returns the version string with the short commit hash when known.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					CommitHash = setting.Value
				case "vcs.time":
					BuildTime = setting.Value
				}
			}
		}
	}

	res := Version
	if CommitHash != "" {
		shortHash := CommitHash
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
