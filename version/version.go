// Package version reports build and document-format information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/healthtwin/twin"
)

// Set with -ldflags "-X github.com/teranos/healthtwin/version.Version=...".
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running binary.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	// Dirty is set when the binary was built from a modified checkout.
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	// DocumentVersion is the twin document format this build writes.
	DocumentVersion string `json:"document_version"`
}

// Get returns the build information. Values not injected through ldflags
// fall back to the VCS stamp the go toolchain embeds.
func Get() Info {
	info := Info{
		Version:         Version,
		CommitHash:      CommitHash,
		BuildTime:       BuildTime,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
		DocumentVersion: twin.CurrentVersion,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fromBuildSettings(bi.Settings)
	}
	if info.CommitHash == "" {
		info.CommitHash = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

func (i *Info) fromBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Dirty = s.Value == "true"
		}
	}
}

// Release returns the parsed semantic version, or nil for development builds.
func (i Info) Release() *semver.Version {
	v, err := semver.NewVersion(i.Version)
	if err != nil {
		return nil
	}
	return v
}

func (i Info) String() string {
	name := "dev"
	if v := i.Release(); v != nil {
		name = "v" + v.String()
	}
	commit := i.Short()
	if i.Dirty {
		commit += "+dirty"
	}
	return fmt.Sprintf("twin %s (commit %s, built %s, document format %s)", name, commit, i.BuildTime, i.DocumentVersion)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
