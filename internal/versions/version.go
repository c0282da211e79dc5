// Package versions reports build information for the pinphoto server.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknown = "unknown"

// Set at build time with -ldflags "-X github.com/stacklok/pinphoto-server/internal/versions.Version=..."
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information of the running binary
func GetVersionInfo() Info {
	return buildInfo(Version, Commit, BuildDate, debug.ReadBuildInfo)
}

func buildInfo(version, commit, buildDate string, read func() (*debug.BuildInfo, bool)) Info {
	// Development builds fall back to the VCS stamp of the go toolchain
	if version == "dev" {
		if bi, ok := read(); ok {
			for _, s := range bi.Settings {
				switch {
				case s.Key == "vcs.revision" && commit == unknown:
					commit = s.Value
				case s.Key == "vcs.time" && buildDate == unknown:
					buildDate = s.Value
				}
			}
		}
		version = fmt.Sprintf("dev-%.8s", commit)
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format(time.DateTime + " MST")
	}

	return Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
