// Package version reports build metadata.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/gaia/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/gaia/internal/version.Commit=abc123
//	  -X github.com/soyeahso/gaia/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the structured form of the version, as served by the status
// endpoints.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Current returns the running build.
func Current() Build {
	return Build{Version: Version, Commit: short(Commit), Date: Date, Go: runtime.Version()}
}

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("gaia %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on outbound API requests.
func UserAgent() string {
	return "gaia/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
