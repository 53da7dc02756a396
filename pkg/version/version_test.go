package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if !strings.HasPrefix(info.String(), "gdmirror "+info.Short()) {
		t.Errorf("String() = %q", info.String())
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}

	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			name: "defaults filled",
			in:   Info{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"},
			want: Info{Version: "v1.2.3", GitCommit: "0123456789ab", BuildTime: "2026-01-02T03:04:05Z"},
		},
		{
			name: "ldflags kept",
			in:   Info{Version: "v9.0.0", GitCommit: "abc", BuildTime: "yesterday"},
			want: Info{Version: "v9.0.0", GitCommit: "abc", BuildTime: "yesterday"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			fillFromBuildInfo(&got, bi)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFillFromBuildInfo_DevelVersionIgnored(t *testing.T) {
	info := Info{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"}
	fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "dev" {
		t.Errorf("Version = %q, want dev", info.Version)
	}
}
