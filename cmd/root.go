// Package cmd provides the CLI commands for the LMI agent.
//
// Commands:
//   - serve: HTTP API server
//   - ingest: One-shot job ingestion from configured boards
//   - migrate: Apply pending database migrations
//   - version: Version information
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobradar/lmi/internal/log"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:           "lmi",
	Short:         "Labor market intelligence agent",
	Long:          "lmi ingests job postings, indexes them for retrieval, and serves AI-powered skill gap analysis over a JSON API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if debugFlag || os.Getenv("DEBUG") != "" {
			level = slog.LevelDebug
		}
		slog.SetDefault(log.New(log.Config{Level: level, JSON: true}))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, ingestCmd, migrateCmd, versionCmd)
}
