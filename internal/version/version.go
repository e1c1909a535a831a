// Package version provides version information for subctl.
package version

import (
	"fmt"
	"runtime"

	"github.com/opmodel/subctl/internal/certificate"
)

// Build-time variables set via ldflags.
var (
	// Version is the CLI version (set via ldflags).
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// CUESDKVersion is the CUE SDK used to validate configuration files.
const CUESDKVersion = "v0.15.4"

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`

	// CUESDKVersion is the CUE SDK version (embedded at build time).
	CUESDKVersion string `json:"cueSDKVersion"`

	// CertificateVersion is the newest entitlement certificate layout read.
	CertificateVersion string `json:"certificateVersion"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		Version:            Version,
		GitCommit:          GitCommit,
		BuildDate:          BuildDate,
		GoVersion:          runtime.Version(),
		CUESDKVersion:      CUESDKVersion,
		CertificateVersion: certificate.EntitlementVersion,
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("subctl:\n  Version:  %s\n  Build ID: %s/%s\n  Go:       %s\n\nCertificates:\n  Entitlement Version: %s\n\nCUE:\n  SDK Version: %s",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.CertificateVersion, i.CUESDKVersion)
}
