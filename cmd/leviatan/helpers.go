package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"leviatan/internal/config"
	"leviatan/internal/errors"
	"leviatan/internal/paths"
	"leviatan/internal/slogutil"
)

// getProjectRoot resolves the working directory to a canonical project root.
func getProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return paths.CanonicalAbs(cwd)
}

// mustGetProjectRoot returns the project root or exits on error.
func mustGetProjectRoot() string {
	root, err := getProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return root
}

// resolveProjectArg picks the project root from an optional positional path
// argument, defaulting to the working directory.
func resolveProjectArg(args []string) (string, error) {
	if len(args) > 0 {
		return paths.CanonicalAbs(args[0])
	}
	return getProjectRoot()
}

// loadConfigOrDefault loads the project configuration, falling back to
// defaults when the file is unreadable.
func loadConfigOrDefault(root string, logger *slog.Logger) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

// cliLogLevel maps the persistent --verbose/--quiet flags to a log level.
func cliLogLevel() slog.Level {
	return slogutil.LevelFromVerbosity(rootVerbosity, rootQuiet)
}

// cliFactoryLevel returns the explicit CLI log level override for the
// logger factory, or 0 when the flags were left at their defaults.
func cliFactoryLevel() slog.Level {
	if rootQuiet || rootVerbosity > 0 {
		return cliLogLevel()
	}
	return 0
}

// newCLILogger builds the stderr logger commands run with. At the default
// verbosity only warnings and errors surface.
func newCLILogger() *slog.Logger {
	return slogutil.NewLogger(os.Stderr, cliLogLevel())
}

// newContext creates a new context for command execution.
func newContext() context.Context {
	return context.Background()
}

// exitWithError prints a structured error, suggested fixes included, and
// exits non-zero. Plain errors print as a single line.
func exitWithError(err error, format OutputFormat) {
	var le *errors.LeviError
	if stderrors.As(err, &le) {
		if output, ferr := FormatResponse(le, format); ferr == nil {
			fmt.Fprintln(os.Stderr, output)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
