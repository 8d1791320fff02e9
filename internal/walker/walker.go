// Package walker provides a lazy, resumable filesystem walk over a project tree.
package walker

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"leviatan/internal/paths"
	"leviatan/internal/slogutil"
)

// textSniffBytes is how much of the content sample is inspected for NUL
// bytes when deciding whether a file is text.
const textSniffBytes = 8 * 1024

// FileDescriptor describes one regular file found during a walk.
// Descriptors are ephemeral and never persisted.
type FileDescriptor struct {
	// RelativePath is the slash-separated path relative to the walk root.
	RelativePath string
	// SizeBytes is the file size at stat time.
	SizeBytes uint64
	// Extension is the lowercased filename extension including the dot,
	// or "" when the name has none.
	Extension string
	// ModTime is the file's modification time at stat time.
	ModTime time.Time
	// ContentSample holds up to SampleSizeBytes of the file's head for
	// text files. It is nil for binary files.
	ContentSample []byte
}

// Options controls a walk.
type Options struct {
	// ExcludeDirs are directory names never descended into (segment match).
	ExcludeDirs []string
	// ExcludeGlobs are filepath.Match patterns applied to relative slash
	// paths (and, for files, to the base name).
	ExcludeGlobs []string
	// SkipHiddenDirs skips directories whose name starts with a dot.
	SkipHiddenDirs bool
	// UseGitignore additionally excludes entries matched by the root
	// .gitignore.
	UseGitignore bool
	// MaxFileSizeBytes skips files larger than this entirely. 0 = no cap.
	MaxFileSizeBytes int64
	// MaxFiles stops the walk after emitting this many descriptors.
	// 0 = unlimited.
	MaxFiles int
	// MaxDepth bounds emitted paths to this many segments. 0 = unlimited.
	MaxDepth int
	// SampleSizeBytes is how much file content to capture per descriptor.
	SampleSizeBytes int
	// ResumeAfter, when set, skips every path ordered at or before it so a
	// walk continues exactly where a prior one stopped.
	ResumeAfter string

	Logger *slog.Logger
}

// DefaultOptions mirrors the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		ExcludeDirs: []string{
			"node_modules", ".git", "dist", "build", "__pycache__",
			".next", "target", "venv", ".venv", "vendor",
		},
		ExcludeGlobs:     []string{paths.SnapshotFileName},
		SkipHiddenDirs:   true,
		UseGitignore:     false,
		MaxFileSizeBytes: 2 * 1024 * 1024,
		MaxFiles:         5000,
		MaxDepth:         6,
		SampleSizeBytes:  64 * 1024,
	}
}

// frame is one directory being traversed. Entries come pre-sorted from
// os.ReadDir, which gives the walk its deterministic order.
type frame struct {
	abs     string
	rel     string // "" for the root
	entries []os.DirEntry
	next    int
	depth   int // segment count of paths directly inside this directory, minus 1
}

// Walk is a pull iterator over a project tree. Files are produced in
// lexicographic order of their slash-separated relative paths, compared
// segment by segment, so the order is stable across runs and resumable.
type Walk struct {
	root    string
	opts    Options
	exclude map[string]bool
	ignores *ignore.GitIgnore
	stack   []*frame
	visited map[string]bool // canonical dir paths, guards symlink cycles
	emitted int
	skipped int
	done    bool
	logger  *slog.Logger
}

// Start opens a walk rooted at root. The only error condition is a root
// that does not exist, is not a directory, or cannot be listed; every
// later per-entry failure is swallowed and counted instead.
func Start(root string, opts Options) (*Walk, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading project root %s: %w", root, err)
	}

	exclude := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		exclude[name] = true
	}

	w := &Walk{
		root:    root,
		opts:    opts,
		exclude: exclude,
		visited: make(map[string]bool),
		logger:  logger,
	}

	if opts.UseGitignore {
		w.ignores = loadGitignore(root)
	}

	canon, err := paths.CanonicalAbs(root)
	if err == nil {
		w.visited[canon] = true
	}

	w.stack = append(w.stack, &frame{abs: root, entries: entries})
	return w, nil
}

// Next returns the next file descriptor in walk order. The second return
// is false once the walk is exhausted or the file cap was reached.
func (w *Walk) Next() (*FileDescriptor, bool) {
	if w.done {
		return nil, false
	}

	for len(w.stack) > 0 {
		f := w.stack[len(w.stack)-1]
		if f.next >= len(f.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		entry := f.entries[f.next]
		f.next++

		name := entry.Name()
		rel := name
		if f.rel != "" {
			rel = f.rel + "/" + name
		}
		abs := filepath.Join(f.abs, name)

		// Stat (not Lstat) so symlinked directories are followed; the
		// visited set below keeps cycles finite.
		info, err := os.Stat(abs)
		if err != nil {
			w.skipped++
			w.logger.Debug("skipping unreadable entry", "path", rel, "error", err.Error())
			continue
		}

		if info.IsDir() {
			if w.skipDir(name, rel) {
				continue
			}
			if subtreeBeforeResume(rel, w.opts.ResumeAfter) {
				continue
			}
			if w.opts.MaxDepth > 0 && f.depth+1 >= w.opts.MaxDepth {
				continue
			}
			canon, err := paths.CanonicalAbs(abs)
			if err != nil {
				w.skipped++
				continue
			}
			if w.visited[canon] {
				w.logger.Debug("skipping symlink cycle", "path", rel)
				continue
			}
			w.visited[canon] = true

			entries, err := os.ReadDir(abs)
			if err != nil {
				w.skipped++
				w.logger.Debug("skipping unlistable directory", "path", rel, "error", err.Error())
				continue
			}
			w.stack = append(w.stack, &frame{abs: abs, rel: rel, entries: entries, depth: f.depth + 1})
			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}
		if w.opts.ResumeAfter != "" && !pathLess(w.opts.ResumeAfter, rel) {
			continue
		}
		if w.skipFile(name, rel) {
			continue
		}
		if w.opts.MaxFileSizeBytes > 0 && info.Size() > w.opts.MaxFileSizeBytes {
			w.skipped++
			w.logger.Debug("skipping oversized file", "path", rel, "size", info.Size())
			continue
		}

		sample, ok := w.readSample(abs)
		if !ok {
			w.skipped++
			continue
		}

		fd := &FileDescriptor{
			RelativePath:  rel,
			SizeBytes:     uint64(info.Size()),
			Extension:     strings.ToLower(filepath.Ext(name)),
			ModTime:       info.ModTime(),
			ContentSample: sample,
		}

		w.emitted++
		if w.opts.MaxFiles > 0 && w.emitted >= w.opts.MaxFiles {
			w.done = true
		}
		return fd, true
	}

	w.done = true
	return nil, false
}

// Emitted returns how many descriptors this walk has produced.
func (w *Walk) Emitted() int {
	return w.emitted
}

// Skipped returns how many entries were dropped for errors or size caps.
// Exclusion-rule matches are not counted; they are policy, not failures.
func (w *Walk) Skipped() int {
	return w.skipped
}

func (w *Walk) skipDir(name, rel string) bool {
	if w.exclude[name] {
		return true
	}
	if w.opts.SkipHiddenDirs && strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range w.opts.ExcludeGlobs {
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	if w.ignores != nil && (w.ignores.MatchesPath(rel) || w.ignores.MatchesPath(rel+"/")) {
		return true
	}
	return false
}

func (w *Walk) skipFile(name, rel string) bool {
	for _, pattern := range w.opts.ExcludeGlobs {
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	if w.ignores != nil && w.ignores.MatchesPath(rel) {
		return true
	}
	return false
}

// readSample reads up to SampleSizeBytes from the file head. Binary files
// (NUL byte within the sniff window) yield a nil sample; read failures
// yield ok=false.
func (w *Walk) readSample(abs string) ([]byte, bool) {
	if w.opts.SampleSizeBytes <= 0 {
		return nil, true
	}

	file, err := os.Open(abs)
	if err != nil {
		return nil, false
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	sample, err := io.ReadAll(io.LimitReader(file, int64(w.opts.SampleSizeBytes)))
	if err != nil {
		return nil, false
	}

	sniff := sample
	if len(sniff) > textSniffBytes {
		sniff = sniff[:textSniffBytes]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, true
	}
	return sample, true
}

// PathLess reports whether a is visited before b. Callers that persist a
// resume position use it to reason about which side of the position a
// given path falls on.
func PathLess(a, b string) bool {
	return pathLess(a, b)
}

// pathLess orders slash paths segment by segment, matching the walk's
// depth-first visitation order (so "a/b" sorts before "a.txt").
func pathLess(a, b string) bool {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}

// subtreeBeforeResume reports whether every path under dir orders at or
// before the resume point, letting the walk prune whole directories that
// a resumed chunk has already covered.
func subtreeBeforeResume(dir, resume string) bool {
	if resume == "" {
		return false
	}
	ds := strings.Split(dir, "/")
	rs := strings.Split(resume, "/")
	for i := 0; i < len(ds) && i < len(rs); i++ {
		if ds[i] != rs[i] {
			return ds[i] < rs[i]
		}
	}
	// dir is an ancestor of the resume path (or the comparison ran out):
	// entries after the resume point may remain inside, so descend.
	return false
}

// loadGitignore compiles the root .gitignore if present.
func loadGitignore(root string) *ignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	return ignore.CompileIgnoreLines(lines...)
}
