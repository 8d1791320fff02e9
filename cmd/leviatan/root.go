package main

import (
	"leviatan/internal/version"

	"github.com/spf13/cobra"
)

var (
	// rootVerbosity and rootQuiet steer how chatty commands are on stderr.
	rootVerbosity int
	rootQuiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "leviatan",
	Short: "Leviatan - project insights engine",
	Long: `Leviatan analyzes a project tree into a durable insights snapshot
(technologies, frameworks, structure and quality signals) and tracks developer
work sessions alongside it. Commands run the analysis locally; 'leviatan serve'
keeps a daemon running with an HTTP API, file watching and scheduled refresh.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("leviatan version {{.Version}}\n")
	rootCmd.PersistentFlags().CountVarP(&rootVerbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress log output")
}
