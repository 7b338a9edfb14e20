package version

import "fmt"

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild can be set at link time with
// '-ldflags "-X github.com/crowcoin/crowd/version.appBuild=foo"'. Only
// letters, digits and dashes are accepted; any other character drops the
// whole build tag from the version string.
var appBuild string

var version string

func init() {
	version = fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appBuild != "" && validBuildTag(appBuild) {
		version += "-" + appBuild
	}
}

// Version returns the application version string.
func Version() string {
	return version
}

func validBuildTag(tag string) bool {
	for _, r := range tag {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
		default:
			return false
		}
	}
	return true
}
