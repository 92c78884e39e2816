package params

import "fmt"

// Version components of the current release.
const (
	VersionMajor = 0 // Major version component of the current release
	VersionMinor = 1 // Minor version component of the current release
	VersionPatch = 0 // Patch version component of the current release
	VersionMeta  = "unstable"
)

// Version holds the textual version string.
var Version = func() string {
	v := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	if VersionMeta != "" {
		v += "-" + VersionMeta
	}
	return v
}()

// VersionWithCommit composes the reported client version from the release
// version plus the build's VCS commit/date, mirroring go-ethereum's
// params.VersionWithCommit.
func VersionWithCommit(gitCommit, gitDate string) string {
	vsn := Version
	if len(gitCommit) >= 8 {
		vsn += "-" + gitCommit[:8]
	}
	if (VersionMeta != "stable") && gitDate != "" {
		vsn += "-" + gitDate
	}
	return vsn
}
