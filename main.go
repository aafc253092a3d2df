package main

import (
	"fmt"
	"os"

	"github.com/tphakala/vocalcoach/cmd"
	"github.com/tphakala/vocalcoach/internal/buildinfo"
	"github.com/tphakala/vocalcoach/internal/conf"
)

// Set by the linker: -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings, build)
	defer cmd.Shutdown()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
