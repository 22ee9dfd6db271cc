// Package version reports the daemon's build information and the loaded
// control driver's module version.
package version

import (
	"os"
	"regexp"
	"strings"
)

// DefaultModuleVersionPath is where the kernel exposes the control
// driver's version string when the module is loaded.
const DefaultModuleVersionPath = "/sys/module/tuxedo_io/version"

// semverPattern validates version strings so garbage from sysfs is not
// passed through verbatim.
var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// Info is the full version report.
type Info struct {
	Daemon        string `json:"daemon"`
	BuildTime     string `json:"buildTime"`
	GitCommit     string `json:"gitCommit"`
	DriverLoaded  bool   `json:"driverLoaded"`
	DriverVersion string `json:"driverVersion,omitempty"`
}

// Service collects version information.
type Service struct {
	daemon     string
	buildTime  string
	gitCommit  string
	modulePath string
}

// NewService creates a version service for the given build identifiers.
func NewService(daemon, buildTime, gitCommit string) *Service {
	return &Service{
		daemon:     daemon,
		buildTime:  buildTime,
		gitCommit:  gitCommit,
		modulePath: DefaultModuleVersionPath,
	}
}

// SetModulePath overrides the sysfs location (for testing).
func (s *Service) SetModulePath(path string) {
	s.modulePath = path
}

// Info reads the driver version fresh on every call so a module reload
// shows up without restarting the daemon.
func (s *Service) Info() Info {
	info := Info{
		Daemon:    s.daemon,
		BuildTime: s.buildTime,
		GitCommit: s.gitCommit,
	}
	if v, ok := s.driverVersion(); ok {
		info.DriverLoaded = true
		info.DriverVersion = v
	}
	return info
}

func (s *Service) driverVersion() (string, bool) {
	data, err := os.ReadFile(s.modulePath)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", false
	}
	return Normalize(v), true
}

// Normalize strips the leading "v" from well-formed semver strings and
// leaves anything else untouched.
func Normalize(v string) string {
	if semverPattern.MatchString(v) {
		return strings.TrimPrefix(v, "v")
	}
	return v
}

// UpdateAvailable compares two version strings after normalization. The
// comparison is plain inequality, not semantic ordering; unknown or empty
// versions never report an update.
func UpdateAvailable(installed, latest string) bool {
	if installed == "" || latest == "" || installed == "unknown" || latest == "unknown" {
		return false
	}
	return Normalize(installed) != Normalize(latest)
}
