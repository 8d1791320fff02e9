package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"leviatan/internal/config"
	"leviatan/internal/errors"
	"leviatan/internal/paths"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the Leviatan workspace for this project",
	Long: `Creates the .leviatan workspace directory with a default configuration.
Session and job databases are created lazily by the commands that need them.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Reset an existing configuration to defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()
	configPath := paths.ConfigPath(root)

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Println("Leviatan already initialized.")
		fmt.Printf("Configuration: %s\n", configPath)
		fmt.Println("Run 'leviatan init --force' to reset the configuration to defaults.")
		return nil
	}

	// Only the config file is ever reset. Session and job databases hold
	// history that a re-init must not destroy.
	if err := os.MkdirAll(paths.LogsDir(root), 0755); err != nil {
		return errors.NewLeviError(errors.IOError,
			fmt.Sprintf("Failed to create workspace directory %q", paths.WorkspaceDir(root)),
			err, nil, nil)
	}

	if err := config.DefaultConfig().Save(root); err != nil {
		return errors.NewLeviError(errors.IOError,
			"Failed to write default configuration", err, nil, nil)
	}

	fmt.Println("✓ Leviatan initialized.")
	fmt.Printf("Configuration: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'leviatan analyze' to build the insights snapshot")
	fmt.Println("  2. Run 'leviatan status' to check workspace state")
	return nil
}
