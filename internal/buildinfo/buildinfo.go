// Package buildinfo reports the Envoy version. Values come from
// -ldflags when set, otherwise from the module and VCS data the Go
// toolchain embeds in the binary.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/nugget/envoy/internal/buildinfo.Version=v0.3.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	startTime = time.Now()
	fillOnce  sync.Once
)

// fill replaces unstamped values with what debug.ReadBuildInfo knows.
func fill() {
	fillOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if GitCommit == "unknown" && len(s.Value) >= 7 {
					GitCommit = s.Value[:7]
				}
			case "vcs.time":
				if BuildTime == "unknown" {
					BuildTime = s.Value
				}
			}
		}
	})
}

// BuildInfo returns the static build metadata.
func BuildInfo() map[string]string {
	fill()
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// RuntimeInfo is [BuildInfo] plus process uptime, served on /v1/version.
func RuntimeInfo() map[string]string {
	info := BuildInfo()
	info["uptime"] = Uptime().String()
	return info
}

// Uptime returns the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	fill()
	return "Envoy/" + Version
}

func String() string {
	fill()
	return fmt.Sprintf("Envoy %s (%s) built %s", Version, GitCommit, BuildTime)
}
