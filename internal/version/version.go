// Package version reports the build version of the llmhub binary.
package version

import "fmt"

// Version and BuildTime are set at build time with -ldflags "-X ...".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Name is reported by the CLI and the MCP server implementation info.
const Name = "llmhub"

// String returns the formatted version information.
func String() string {
	return fmt.Sprintf("%s version %s (built %s)", Name, Version, BuildTime)
}
