// Package version tracks build metadata for the application.
package version

// These are intended to be overridden at link time via -ldflags.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Current returns the build metadata compiled into the binary.
func Current() Info {
	v := Version
	if v == "" {
		v = "dev"
	}
	return Info{
		Version:   v,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}
