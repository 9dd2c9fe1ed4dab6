// Package gcloud provisions the Google Cloud CLI and manages its credentials.
//
// [Provisioner] resolves, caches and installs SDK releases; [Broker]
// authenticates the installed CLI and sets its default project. Both shell
// out to the CLI through [CLI].
package gcloud

import (
	"fmt"
	"runtime"
)

// ToolName is the tool cache key for the SDK.
const ToolName = "gcloud"

// Release endpoints.
const (
	DefaultManifestURL = "https://dl.google.com/dl/cloudsdk/channels/rapid/components-2.json"
	DefaultDownloadURL = "https://dl.google.com/dl/cloudsdk/channels/rapid/downloads"
	DefaultBucketURL   = "https://storage.googleapis.com/storage/v1/b/cloud-sdk-release/o"
)

// archivePrefix is the file name prefix of release archives.
const archivePrefix = "google-cloud-cli-"

// sdkDir is the top-level directory inside release archives.
const sdkDir = "google-cloud-sdk"

// Platform identifies a release archive flavour.
type Platform struct {
	OS   string // linux, darwin, windows
	Arch string // x86_64, arm, x86
}

// HostPlatform returns the release platform for the running process.
func HostPlatform() Platform {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps Go's GOOS/GOARCH to the SDK's release naming.
//
//	amd64 -> x86_64
//	arm64 -> arm
//	386   -> x86
func PlatformFor(goos, goarch string) Platform {
	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "arm"
	case "386":
		arch = "x86"
	}
	return Platform{OS: goos, Arch: arch}
}

// ArchiveFormat returns "zip" on Windows and "tar.gz" elsewhere.
func (p Platform) ArchiveFormat() string {
	if p.OS == "windows" {
		return "zip"
	}
	return "tar.gz"
}

// archiveSuffix is the part of an archive name after the version.
//
//	Platform{"linux", "x86_64"}.archiveSuffix() → "-linux-x86_64.tar.gz"
func (p Platform) archiveSuffix() string {
	return fmt.Sprintf("-%s-%s.%s", p.OS, p.Arch, p.ArchiveFormat())
}

// ArchiveName returns the release archive file name for version.
func (p Platform) ArchiveName(version string) string {
	return archivePrefix + version + p.archiveSuffix()
}

// CommandName returns the CLI executable name for the running OS.
func CommandName() string {
	if runtime.GOOS == "windows" {
		return "gcloud.cmd"
	}
	return "gcloud"
}
