// Package version reports which build of the decorators server is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Stamped at link time, e.g.
//
//	-ldflags "-X github.com/onehippo-forge/servlet-filter-decorators/internal/version.Version=v0.3.0"
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// Get prefers the link-time values and falls back to the VCS stamps the Go
// toolchain embeds in the binary.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}
	return info
}

func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "decorators %s", i.Short())
	if i.Modified {
		b.WriteString(" (modified)")
	}
	if i.BuildDate != "" {
		fmt.Fprintf(&b, "\nbuilt %s", i.BuildDate)
	}
	fmt.Fprintf(&b, "\n%s %s", i.Go, i.Platform)
	return b.String()
}

// Short is the version with the first 12 characters of the commit, if known.
func (i Info) Short() string {
	if len(i.Commit) > 12 {
		return i.Version + "+" + i.Commit[:12]
	}
	if i.Commit != "" {
		return i.Version + "+" + i.Commit
	}
	return i.Version
}

func Short() string { return Get().Short() }
