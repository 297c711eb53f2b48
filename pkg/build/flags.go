// SPDX-License-Identifier: MIT
//
// Package build holds the version metadata of the binary. Release builds
// embed it with linker flags:
//
//	go build -ldflags "-X emgrep/pkg/build.buildName=emgrep \
//	  -X emgrep/pkg/build.buildTime=$(date -u +%FT%TZ) \
//	  -X emgrep/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X emgrep/pkg/build.buildVersion=v0.3.0"
//
// Development builds carry no flags at all and fall back to the module and
// VCS information the Go toolchain records.
package build

import (
	"fmt"
	"runtime/debug"
)

const defaultName = "emgrep"

// Info is the build metadata of the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// LogContext returns the info as log15 key/value pairs.
func (i Info) LogContext() []interface{} {
	return []interface{}{"version", i.Version, "commit", i.Commit, "built", i.Time}
}

// Package-level variables for build information. These are populated by
// -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:    defaultName,
		Time:    "unknown",
		Commit:  "unknown",
		Version: "devel",
	}
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Initialize copies the linker flags into the build info. A partial set of
// flags is an error; no flags at all selects the development fallback.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		initFromRuntime()
		return nil
	}

	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildInfo.Name = buildName
	buildInfo.Time = buildTime
	buildInfo.Commit = buildCommit
	buildInfo.Version = buildVersion
	return nil
}

func initFromRuntime() {
	bi, ok := readBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		buildInfo.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) > 7 {
				buildInfo.Commit = s.Value[:7]
			} else {
				buildInfo.Commit = s.Value
			}
		case "vcs.time":
			buildInfo.Time = s.Value
		}
	}
}

// GetBuildFlags returns the current build information. Initialize must be
// called first.
func GetBuildFlags() *Info {
	return buildInfo
}
