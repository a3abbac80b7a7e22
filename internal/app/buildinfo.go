package app

import (
	"runtime/debug"
	"strings"
)

// Version is filled by ldflags in release builds.
var Version = ""

// BuildVersion prefers the ldflags version, then the module version from `go install`.
func BuildVersion() string {
	if version := strings.TrimSpace(Version); version != "" {
		return version
	}

	return moduleVersion(debug.ReadBuildInfo)
}

func moduleVersion(read func() (*debug.BuildInfo, bool)) string {
	info, ok := read()
	if !ok || info == nil {
		return "dev"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return "dev-" + s.Value[:7]
		}
	}

	return "dev"
}
