package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"leviatan/internal/config"
	"leviatan/internal/paths"
)

// LoggerFactory creates appropriately configured loggers for different subsystems.
// It respects the configuration precedence: CLI flags > subsystem config > global config.
type LoggerFactory struct {
	projectRoot string
	config      *config.Config
	cliLevel    slog.Level // from CLI flags (0 means not set)
	closers     []io.Closer
}

// NewLoggerFactory creates a new logger factory.
// cliLevel should be 0 if no CLI override was specified.
func NewLoggerFactory(projectRoot string, cfg *config.Config, cliLevel slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		projectRoot: projectRoot,
		config:      cfg,
		cliLevel:    cliLevel,
		closers:     make([]io.Closer, 0),
	}
}

// AnalysisLogger creates a logger for analysis runs.
// Writes to <projectRoot>/.leviatan/logs/analysis.log
func (f *LoggerFactory) AnalysisLogger() (*slog.Logger, error) {
	return f.subsystemLogger("analysis", "analysis.log")
}

// ServeLogger creates a logger for the HTTP facade and serve mode.
// Writes to <projectRoot>/.leviatan/logs/serve.log
func (f *LoggerFactory) ServeLogger() (*slog.Logger, error) {
	return f.subsystemLogger("serve", "serve.log")
}

// SessionLogger creates a logger for session tracking.
// Writes to <projectRoot>/.leviatan/logs/session.log
func (f *LoggerFactory) SessionLogger() (*slog.Logger, error) {
	return f.subsystemLogger("session", "session.log")
}

// subsystemLogger builds a file logger for a subsystem, teeing to Loki
// when a remote log endpoint is configured. Any setup failure degrades
// to a discard logger so logging can never break the subsystem itself.
func (f *LoggerFactory) subsystemLogger(subsystem, filename string) (*slog.Logger, error) {
	if f.projectRoot == "" {
		return NewDiscardLogger(), nil
	}

	logsDir := paths.LogsDir(f.projectRoot)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return NewDiscardLogger(), nil
	}

	level := f.effectiveLevel(subsystem)
	logger, closer, err := f.createFileLogger(filepath.Join(logsDir, filename), level)
	if err != nil {
		return NewDiscardLogger(), nil
	}
	f.closers = append(f.closers, closer)

	if f.config.Logging.Loki != nil && f.config.Logging.Loki.Endpoint != "" {
		if teed := f.teeWithLoki(logger.Handler(), subsystem, level); teed != nil {
			return teed, nil
		}
	}

	return logger, nil
}

// teeWithLoki attaches a Loki push handler next to the file handler.
// Returns nil when the Loki handler cannot be created.
func (f *LoggerFactory) teeWithLoki(fileHandler slog.Handler, subsystem string, level slog.Level) *slog.Logger {
	lh, err := NewLokiHandler(f.config.Logging.Loki, map[string]string{
		"app":       "leviatan",
		"subsystem": subsystem,
	}, level)
	if err != nil {
		return nil
	}
	lh.Start()
	f.closers = append(f.closers, lokiCloser{lh})
	return NewTeeLogger(fileHandler, lh)
}

// lokiCloser adapts LokiHandler.Stop to io.Closer for factory cleanup.
type lokiCloser struct {
	h *LokiHandler
}

func (c lokiCloser) Close() error {
	return c.h.Stop()
}

// createFileLogger creates a file logger with optional rotation based on config
func (f *LoggerFactory) createFileLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	// Check if rotation is configured
	if f.config.Logging.MaxSize != "" {
		return NewFileLoggerWithRotation(path, level, f.config.Logging.MaxSize, f.config.Logging.MaxBackups)
	}
	// No rotation, use regular file logger
	logger, file, err := NewFileLogger(path, level)
	if err != nil {
		return nil, nil, err
	}
	return logger, file, nil
}

// effectiveLevel returns the effective log level for a subsystem.
// Precedence: CLI flag > subsystem config > global config > default (info)
func (f *LoggerFactory) effectiveLevel(subsystem string) slog.Level {
	// CLI flag takes highest precedence
	if f.cliLevel != 0 {
		return f.cliLevel
	}

	// Check subsystem-specific config
	var subsystemLevel string
	switch subsystem {
	case "analysis":
		subsystemLevel = f.config.Logging.Analysis
	case "serve":
		subsystemLevel = f.config.Logging.Serve
	case "session":
		subsystemLevel = f.config.Logging.Session
	}

	if subsystemLevel != "" {
		return LevelFromString(subsystemLevel)
	}

	// Fall back to global config level
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}

	// Default
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
