// Package main implements the bgv-agent binary: the HTTP sidecar that drives
// candidate onboarding emails for background verification requests, plus the
// operational commands around it.
package main

import (
	"os"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
