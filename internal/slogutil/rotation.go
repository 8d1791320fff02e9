package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// rotatingWriter is an append-only file writer that rotates the file to
// numbered backups (log.1 is the newest) once it would grow past
// maxBytes. Rotation failures are swallowed so a full disk or renamed
// directory degrades to an oversized file rather than lost lines.
type rotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	backups int
	f       *os.File
	written int64
}

func openRotating(path string, maxBytes int64, backups int) (*rotatingWriter, error) {
	w := &rotatingWriter{path: path, maxSize: maxBytes, backups: backups}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.written+int64(len(p)) > w.maxSize {
		_ = w.rotate()
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}

func (w *rotatingWriter) reopen() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.written = st.Size()
	return nil
}

// rotate shifts log.N-1 -> log.N for each backup slot, moves the live
// file into slot 1, and reopens a fresh file. Caller holds w.mu.
func (w *rotatingWriter) rotate() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return err
		}
	}

	slot := func(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
	_ = os.Remove(slot(w.backups))
	for n := w.backups - 1; n >= 1; n-- {
		if _, err := os.Stat(slot(n)); err == nil {
			_ = os.Rename(slot(n), slot(n+1))
		}
	}
	if w.backups > 0 {
		_ = os.Rename(w.path, slot(1))
	} else {
		_ = os.Remove(w.path)
	}

	w.written = 0
	return w.reopen()
}

// parseByteSize reads a human size like "10MB", "500 KB", or "1.5GB"
// into bytes. A bare number means bytes. Empty, malformed, or negative
// input yields 0, which disables rotation.
func parseByteSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}

	unit := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		unit, s = 1<<30, s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		unit, s = 1<<20, s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		unit, s = 1<<10, s[:len(s)-2]
	case strings.HasSuffix(s, "B"):
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int64(n * float64(unit))
}

// NewFileLoggerWithRotation builds a file logger whose backing file
// rotates at maxSize (e.g. "10MB"), keeping maxBackups old files. An
// empty or unparseable maxSize means a plain non-rotating file.
func NewFileLoggerWithRotation(path string, level slog.Level, maxSize string, maxBackups int) (*slog.Logger, io.Closer, error) {
	limit := parseByteSize(maxSize)
	if limit <= 0 {
		logger, f, err := NewFileLogger(path, level)
		if err != nil {
			return nil, nil, err
		}
		return logger, f, nil
	}

	w, err := openRotating(path, limit, maxBackups)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(w, level), w, nil
}
