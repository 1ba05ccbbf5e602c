// Package version reports the build of the rawlayer binary. Both values are
// overridden at link time with -ldflags "-X".
package version

import "runtime"

var Version = "0.1.0"
var BuildDate = "2025-01-01"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func GetVersion() string {
	return Version
}

func GetBuildDate() string {
	return BuildDate
}

func Get() Info {
	return Info{Version: Version, BuildDate: BuildDate, GoVersion: runtime.Version()}
}
