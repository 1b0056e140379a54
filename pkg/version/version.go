// Package version reports the build identity of a hindex binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version, overridable at build time:
//
//	go build -ldflags "-X github.com/reelpipe/hindex/pkg/version.Version=v0.3.0"
//
// Plain go build and go install binaries report "dev".
var Version = "dev"

// Commit and Date may be injected the same way. When left empty they fall
// back to the VCS metadata the Go toolchain stamps into module builds.
var (
	Commit = ""
	Date   = ""
)

// BuildInfo is the structured form behind `hindex version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Resolve returns the build identity with VCS fallbacks applied.
func Resolve() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// String renders the one-line form printed by the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf("hindex %s (commit %s, built %s, %s %s/%s)",
		b.Version, shortHash(b.Commit), b.Date, b.GoVersion, b.OS, b.Arch)
}

// shortHash truncates a full revision hash to the familiar short form.
func shortHash(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
