// Package buildinfo holds agent metadata stamped at link time.
//
//	go build -ldflags "\
//	  -X github.com/dotside-studios/rfid-agent/buildinfo.Version=1.0.0 \
//	  -X github.com/dotside-studios/rfid-agent/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/dotside-studios/rfid-agent/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Name is the binary and config directory name.
	Name = "rfid-agent"

	// DisplayName is advertised over mDNS and shown in the console banner.
	DisplayName = "RFID Agent"

	Description = "UHF RFID reader session agent with WebSocket tag streaming"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion returns Version, suffixed with the commit when known.
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// UserAgent is sent by the bridge driver when dialing a reader bridge.
func UserAgent() string {
	return Name + "/" + Version
}

// Banner returns the multi-line text printed by --version and the console.
func Banner() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", DisplayName, FullVersion())
	fmt.Fprintf(&b, "  %s\n", Description)
	fmt.Fprintf(&b, "  Go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  Built: %s", BuildTime)
	}
	return b.String()
}

// Attrs returns slog key/value pairs describing this build.
func Attrs() []any {
	attrs := []any{"version", Version, "go", runtime.Version()}
	if Commit != "" {
		attrs = append(attrs, "commit", Commit)
	}
	if BuildTime != "" {
		attrs = append(attrs, "built", BuildTime)
	}
	return attrs
}

// IsDev reports whether the binary was built without a release version.
func IsDev() bool {
	return Version == "dev"
}
