package version

// Build information, overridden at build time via -ldflags "-X".
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// Info is the build information reported by /health.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	BuiltAt string `json:"builtAt"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
}

// String renders the build information for log lines.
func (i Info) String() string {
	return "version=" + i.Version + " commit=" + i.Commit + " built_at=" + i.BuiltAt
}
