// Package watcher triggers re-analysis when a watched project tree
// changes. It polls with a stat-only walk rather than using inotify so
// behavior is identical across platforms and network filesystems, and
// debounces bursts so a save-all or checkout yields one trigger.
package watcher

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"leviatan/internal/config"
	"leviatan/internal/paths"
	"leviatan/internal/slogutil"
	"leviatan/internal/walker"
)

// EventType classifies a detected tree change.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

// String returns the wire name of the event type.
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one detected change, with Path relative to the project root.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// ChangeHandler receives the debounced batch of changes for a project.
type ChangeHandler func(projectPath string, events []Event)

// Config controls polling and change batching.
type Config struct {
	Enabled      bool
	PollInterval time.Duration
	Debounce     time.Duration
	// Walk carries the exclusion rules, shared with analysis scans so
	// the watcher only reacts to files the analyzer would see.
	Walk walker.Options
}

// DefaultConfig returns the shipped watcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		PollInterval: 2 * time.Second,
		Debounce:     1500 * time.Millisecond,
		Walk:         walkOptionsFrom(config.DefaultConfig().Walker),
	}
}

// FromProjectConfig derives the watcher configuration from a project's
// settings.
func FromProjectConfig(cfg *config.Config) Config {
	return Config{
		Enabled:      cfg.Watcher.Enabled,
		PollInterval: time.Duration(cfg.Watcher.PollIntervalMs) * time.Millisecond,
		Debounce:     time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond,
		Walk:         walkOptionsFrom(cfg.Walker),
	}
}

// walkOptionsFrom maps walker settings into walk options, always
// excluding the workspace directory and the snapshot file. Without
// that, writing analysis results would itself look like a change and
// the watcher would retrigger forever.
func walkOptionsFrom(wc config.WalkerConfig) walker.Options {
	dirs := append([]string(nil), wc.ExcludeDirs...)
	if !containsString(dirs, paths.WorkspaceDirName) {
		dirs = append(dirs, paths.WorkspaceDirName)
	}
	globs := append([]string(nil), wc.ExcludeGlobs...)
	if !containsString(globs, paths.SnapshotFileName) {
		globs = append(globs, paths.SnapshotFileName)
	}

	return walker.Options{
		ExcludeDirs:      dirs,
		ExcludeGlobs:     globs,
		SkipHiddenDirs:   wc.SkipHiddenDirs,
		UseGitignore:     wc.UseGitignore,
		MaxFileSizeBytes: wc.MaxFileSizeBytes,
		MaxFiles:         wc.MaxFiles,
		MaxDepth:         wc.MaxDepth,
	}
}

// Watcher polls registered project trees for changes.
type Watcher struct {
	config   Config
	logger   *slog.Logger
	handler  ChangeHandler
	projects map[string]*projectWatcher

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// projectWatcher tracks one project tree between polls. Its state is
// only touched by the poll goroutine.
type projectWatcher struct {
	projectPath string
	debouncer   *Debouncer
	state       map[string]fileState
	stopCh      chan struct{}
}

// fileState is what a poll remembers about one file between scans.
type fileState struct {
	size    uint64
	modTime time.Time
}

// New creates a watcher. Changes are delivered to handler after the
// debounce window closes. A nil logger discards output.
func New(config Config, logger *slog.Logger, handler ChangeHandler) *Watcher {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		config:   config,
		logger:   logger,
		handler:  handler,
		projects: make(map[string]*projectWatcher),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WatchProject starts polling a project tree. The current tree becomes
// the baseline, so pre-existing files do not fire change events.
// Watching an already-watched project is a no-op.
func (w *Watcher) WatchProject(projectPath string) error {
	if !w.config.Enabled {
		w.logger.Debug("file watching disabled", "projectPath", projectPath)
		return nil
	}

	canonical, err := paths.CanonicalAbs(projectPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.projects[canonical]; exists {
		return nil
	}

	state, err := w.scanTree(canonical)
	if err != nil {
		return err
	}

	pw := &projectWatcher{
		projectPath: canonical,
		state:       state,
		stopCh:      make(chan struct{}),
	}
	pw.debouncer = NewDebouncer(w.config.Debounce, func(events []Event) {
		w.logger.Debug("project changes detected",
			"projectPath", canonical,
			"eventCount", len(events))
		if w.handler != nil {
			w.handler(canonical, events)
		}
	})

	w.projects[canonical] = pw

	w.wg.Add(1)
	go w.pollProject(pw)

	w.logger.Info("watching project",
		"projectPath", canonical,
		"files", len(state),
		"pollInterval", w.config.PollInterval)
	return nil
}

// UnwatchProject stops polling a project and drops any pending events.
func (w *Watcher) UnwatchProject(projectPath string) {
	canonical, err := paths.CanonicalAbs(projectPath)
	if err != nil {
		canonical = projectPath
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if pw, exists := w.projects[canonical]; exists {
		close(pw.stopCh)
		pw.debouncer.Cancel()
		delete(w.projects, canonical)
		w.logger.Info("stopped watching project", "projectPath", canonical)
	}
}

// Stop halts all polling. Pending debounced events are dropped, not
// delivered; a change noticed during shutdown has no one to serve it.
func (w *Watcher) Stop() {
	w.cancel()

	w.mu.Lock()
	for _, pw := range w.projects {
		pw.debouncer.Cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("file watcher stopped")
}

// pollProject scans one project tree on a fixed interval.
func (w *Watcher) pollProject(pw *projectWatcher) {
	defer w.wg.Done()

	interval := w.config.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkProject(pw)
		case <-pw.stopCh:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

// checkProject rescans the tree and queues the diff with the debouncer.
func (w *Watcher) checkProject(pw *projectWatcher) {
	current, err := w.scanTree(pw.projectPath)
	if err != nil {
		// Transient scan failures (tree mid-rename, permissions) skip
		// this poll; the next one diffs against the old baseline.
		w.logger.Debug("tree scan failed",
			"projectPath", pw.projectPath,
			"error", err.Error())
		return
	}

	events := diffTrees(pw.state, current)
	pw.state = current

	for _, event := range events {
		pw.debouncer.Add(event)
	}
}

// scanTree takes a stat-only inventory of the project tree.
func (w *Watcher) scanTree(projectPath string) (map[string]fileState, error) {
	opts := w.config.Walk
	opts.SampleSizeBytes = 0 // never read content while polling
	opts.Logger = w.logger

	walk, err := walker.Start(projectPath, opts)
	if err != nil {
		return nil, err
	}

	state := make(map[string]fileState)
	for {
		fd, ok := walk.Next()
		if !ok {
			break
		}
		state[fd.RelativePath] = fileState{size: fd.SizeBytes, modTime: fd.ModTime}
	}
	return state, nil
}

// diffTrees compares two tree inventories and returns the changes,
// sorted by path.
func diffTrees(before, after map[string]fileState) []Event {
	now := time.Now()
	var events []Event

	for path, st := range after {
		prev, ok := before[path]
		switch {
		case !ok:
			events = append(events, Event{Type: EventCreate, Path: path, Timestamp: now})
		case prev.size != st.size || !prev.modTime.Equal(st.modTime):
			events = append(events, Event{Type: EventModify, Path: path, Timestamp: now})
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			events = append(events, Event{Type: EventDelete, Path: path, Timestamp: now})
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// WatchedProjects returns the watched project paths, sorted.
func (w *Watcher) WatchedProjects() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	projects := make([]string, 0, len(w.projects))
	for path := range w.projects {
		projects = append(projects, path)
	}
	sort.Strings(projects)
	return projects
}

// Stats returns watcher statistics for the status surfaces.
func (w *Watcher) Stats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]interface{}{
		"enabled":         w.config.Enabled,
		"watchedProjects": len(w.projects),
		"pollIntervalMs":  int(w.config.PollInterval / time.Millisecond),
		"debounceMs":      int(w.config.Debounce / time.Millisecond),
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
