// Package version identifies the SDK build. The values are overridable at
// build time with -ldflags so released binaries report their real version.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/gosuri/uitable"
)

var (
	// sdkVersion is the semantic version of the SDK, vMAJOR.MINOR.PATCH.
	sdkVersion = "v0.1.0"
	// gitCommit is the output of git rev-parse HEAD at build time.
	gitCommit = ""
	// buildDate is the ISO8601 build timestamp.
	buildDate = "1970-01-01T00:00:00Z"
)

// Info describes the running SDK build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit,omitempty"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns build information embedded in the binary.
func Get() Info {
	return Info{
		Version:   sdkVersion,
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (info Info) String() string { return info.Version }

// ToJSON renders the build info as a JSON object.
func (info Info) ToJSON() (string, error) {
	s, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("marshal version info: %w", err)
	}
	return string(s), nil
}

// Table renders the build info as an aligned key/value table.
func (info Info) Table() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("version:", info.Version)
	if info.GitCommit != "" {
		table.AddRow("gitCommit:", info.GitCommit)
	}
	table.AddRow("buildDate:", info.BuildDate)
	table.AddRow("goVersion:", info.GoVersion)
	table.AddRow("compiler:", info.Compiler)
	table.AddRow("platform:", info.Platform)
	return table.String()
}

// Version returns the bare SDK version string.
func Version() string { return sdkVersion }

// UserAgent is the value sent in the User-Agent header of every request.
func UserAgent() string {
	return fmt.Sprintf("anthropic-kit/%s (%s; %s)", sdkVersion, runtime.GOOS, runtime.GOARCH)
}
