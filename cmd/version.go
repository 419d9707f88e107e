package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobradar/lmi/internal/config"
)

// Build information, injected at build time via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s %s\n", config.AppName, config.AppVersion)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
	},
}
