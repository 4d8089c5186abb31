// Package version carries build metadata injected with -ldflags.
package version

import (
	"runtime/debug"
)

const unknown = "<unknown>"

// Version, Commit and Date are set at link time:
//
//	-ldflags "-X github.com/Sumatoshi-tech/pipetrack/pkg/version.Version=v1.2.0"
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills unset fields from the module build info embedded
// by the Go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	applyBuildInfo(info)
}

func applyBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == unknown {
				Date = setting.Value
			}
		}
	}
}

// String renders the version line printed by the CLI.
func String(binary string) string {
	return binary + " " + Version + " (commit: " + Commit + ", built: " + Date + ")"
}
