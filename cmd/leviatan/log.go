package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"leviatan/internal/errors"
	"leviatan/internal/paths"
)

var logLines int

var logCmd = &cobra.Command{
	Use:   "log [subsystem]",
	Short: "Show workspace log output",
	Long: `Prints the tail of a subsystem log from .leviatan/logs/.

Subsystems: serve (default), analysis, session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logLines, "lines", "n", 100, "Number of lines to show")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	subsystem := "serve"
	if len(args) > 0 {
		subsystem = args[0]
	}
	switch subsystem {
	case "serve", "analysis", "session":
	default:
		return errors.NewInvalidParameterError("subsystem",
			fmt.Sprintf("%q is not one of serve, analysis, session", subsystem))
	}

	logPath := filepath.Join(paths.LogsDir(root), subsystem+".log")
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No logs found.")
		fmt.Printf("Expected at: %s\n", logPath)
		return nil
	}

	return showLastLines(logPath, logLines)
}

func showLastLines(path string, n int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	// Structured log lines with embedded payloads overflow the default
	// token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}

	for _, line := range lines {
		fmt.Println(line)
	}

	return scanner.Err()
}
