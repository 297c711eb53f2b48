// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime/debug"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = *buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildInfo = origInfo

	os.Exit(exitCode)
}

func reset() {
	buildInfo = &Info{Name: defaultName, Time: "unknown", Commit: "unknown", Version: "devel"}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2026-04-13", "abcdef1", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "emgrep", "", "abcdef1", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "emgrep", "2026-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "emgrep", "2026-04-13", "abcdef1", "", "BuildVersion is required"},
		{"Success Case", "emgrep", "2026-04-13", "abcdef1", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			want := Info{Name: tt.buildName, Time: tt.buildTime, Commit: tt.buildCommit, Version: tt.buildVer}
			if *GetBuildFlags() != want {
				t.Errorf("GetBuildFlags() = %+v, want %+v", *GetBuildFlags(), want)
			}
		})
	}
}

func TestInitializeDevelopmentFallback(t *testing.T) {
	reset()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2026-05-01T10:00:00Z"},
			},
		}, true
	}
	defer func() { readBuildInfo = debug.ReadBuildInfo }()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	want := Info{Name: "emgrep", Time: "2026-05-01T10:00:00Z", Commit: "0123456", Version: "devel"}
	if got := *GetBuildFlags(); got != want {
		t.Errorf("GetBuildFlags() = %+v, want %+v", got, want)
	}
}

func TestInfoString(t *testing.T) {
	i := Info{Name: "emgrep", Time: "2026-04-13", Commit: "abcdef1", Version: "v1.0.0"}
	if got, want := i.String(), "v1.0.0 (commit abcdef1, built 2026-04-13)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if len(i.LogContext()) != 6 {
		t.Errorf("LogContext() = %v", i.LogContext())
	}
}
