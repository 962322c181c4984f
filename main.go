// Package main is the entry point for the pwfit command line tool.
package main

import (
	"os"

	"github.com/zjrosen/pwfit/cmd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(version, commit, date)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
