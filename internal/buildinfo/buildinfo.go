package buildinfo

import "runtime/debug"

// Set with -ldflags "-X pickbatch/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the build stamp. Without ldflags the commit and time come
// from the VCS settings the toolchain embeds.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out["go"] = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && out["commit"] == "":
				out["commit"] = s.Value
			case s.Key == "vcs.time" && out["builtAt"] == "":
				out["builtAt"] = s.Value
			}
		}
	}
	return out
}
