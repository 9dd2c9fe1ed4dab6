// Package setupcloudsdk holds the action metadata and release information
// shared by the setup-cloudsdk binary and its internal packages.
package setupcloudsdk

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

// Metadata is the raw action.yml shipped with the action.
//
//go:embed action.yml
var Metadata []byte

// releaseVersion can be set at build time:
//
//	go build -ldflags "-X github.com/fredrikaverpil/setup-cloudsdk.releaseVersion=2.1.4"
var releaseVersion string

// modulePath is the import path of this module.
const modulePath = "github.com/fredrikaverpil/setup-cloudsdk"

// Version returns the release version of the action, without a "v" prefix.
// It prefers the ldflags value, then the module version embedded by
// `go build`/`go install`, then VCS info. Falls back to "dev".
func Version() string {
	if releaseVersion != "" {
		return strings.TrimPrefix(releaseVersion, "v")
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	if info.Main.Path == modulePath && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return strings.TrimPrefix(info.Main.Version, "v")
	}

	var revision, dirty string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 7 {
				revision = s.Value[:7]
			} else {
				revision = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "-dirty"
			}
		}
	}
	if revision != "" {
		return "dev-" + revision + dirty
	}

	return "dev"
}

// MajorRef returns the recommended floating tag for this release, e.g. "v2".
// Development builds return "v0".
func MajorRef() string {
	v := Version()
	major, _, _ := strings.Cut(v, ".")
	if major == "" || strings.HasPrefix(major, "dev") {
		return "v0"
	}
	return "v" + major
}
