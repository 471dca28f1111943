// Command choirreport builds the weekly choir attendance reports, emails them,
// and serves an authenticated preview of each one.
package main

import (
	"errors"
	"fmt"
	"os"

	"choirreport/internal/application/orchestrators"
	"choirreport/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// Exit codes.
const (
	exitOK     = 0
	exitRun    = 1 // a report run failed and the maintainer was notified
	exitConfig = 2 // settings or flags are unusable
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "choirreport:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case orchestrators.IsFatal(err):
		return exitRun
	case errors.Is(err, config.ErrInvalid), errors.Is(err, config.ErrMissingCredentials):
		return exitConfig
	default:
		return exitRun
	}
}
