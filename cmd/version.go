package cmd

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// RunVersion prints build information.
func RunVersion() {
	fmt.Printf("ncpbridge version %s\n", Version)
	fmt.Printf("Build: %s (%s/%s)\n", BuildTime, runtime.GOOS, runtime.GOARCH)
}
