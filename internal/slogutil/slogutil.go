// Package slogutil builds the slog loggers used across leviatan: a
// compact single-line text format for per-subsystem log files, optional
// size-based rotation, and an optional Grafana Loki push handler teed
// next to the file handler.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// levelSilent is above every standard level; nothing gets through.
const levelSilent = slog.Level(100)

// NewLogger returns a logger writing leviatan's line format to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(newTextHandler(w, level))
}

// NewFileLogger opens path in append mode (creating it if needed) and
// returns a logger writing to it plus the file for the caller to close.
func NewFileLogger(path string, level slog.Level) (*slog.Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(f, level), f, nil
}

// NewDiscardLogger returns a logger that drops everything. Used in tests
// and wherever a subsystem runs without a project root to log under.
func NewDiscardLogger() *slog.Logger {
	return slog.New(newTextHandler(io.Discard, levelSilent))
}

// LevelFromString maps a config-file level name to a slog.Level.
// Unrecognized or empty strings fall back to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LevelFromVerbosity maps the CLI -v/-q flags to a slog.Level. The CLI
// default is warn; each -v steps down one level, -q silences everything.
func LevelFromVerbosity(verbosity int, quiet bool) slog.Level {
	switch {
	case quiet:
		return levelSilent
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// textHandler renders records as
//
//	TIMESTAMP [level] Message | key=value key=value
//
// Attributes bound via WithAttrs are rendered once, at bind time, into
// the bound string; Handle only formats the per-record attrs.
type textHandler struct {
	out    io.Writer
	min    slog.Level
	bound  string // pre-rendered " key=value" pairs, possibly empty
	prefix string // dotted group prefix for subsequent attrs
	mu     *sync.Mutex
}

func newTextHandler(w io.Writer, level slog.Level) *textHandler {
	return &textHandler{out: w, min: level, mu: &sync.Mutex{}}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	if h.bound != "" || r.NumAttrs() > 0 {
		b.WriteString(" |")
		b.WriteString(h.bound)
		r.Attrs(func(a slog.Attr) bool {
			writeTextAttr(&b, h.prefix, a)
			return true
		})
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.bound)
	for _, a := range attrs {
		writeTextAttr(&b, h.prefix, a)
	}
	c := *h
	c.bound = b.String()
	return &c
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func writeTextAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(renderValue(a.Value.Resolve()))
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	}
	return fmt.Sprint(v.Any())
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "debug"
	case l < slog.LevelWarn:
		return "info"
	case l < slog.LevelError:
		return "warn"
	}
	return "error"
}

// multiHandler fans one record out to several handlers, each applying
// its own level gate.
type multiHandler []slog.Handler

// NewTeeLogger returns a logger that writes through every handler.
func NewTeeLogger(handlers ...slog.Handler) *slog.Logger {
	return slog.New(multiHandler(handlers))
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}
