// Package daemon runs the always-on leviatan service for one project
// root: the HTTP facade, the background job runner, the file watcher and
// the maintenance scheduler, with a PID file so CLI invocations can find
// a live instance.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leviatan/internal/analysis"
	"leviatan/internal/api"
	"leviatan/internal/config"
	"leviatan/internal/insights"
	"leviatan/internal/jobs"
	"leviatan/internal/paths"
	"leviatan/internal/progress"
	"leviatan/internal/scheduler"
	"leviatan/internal/session"
	"leviatan/internal/slogutil"
	"leviatan/internal/version"
	"leviatan/internal/watcher"
)

// shutdownTimeout bounds each component's stop during daemon shutdown.
const shutdownTimeout = 30 * time.Second

// Daemon composes the long-running components around one project root.
type Daemon struct {
	projectRoot string
	cfg         *config.Config
	logger      *slog.Logger
	pid         *PIDFile

	store     *insights.Store
	publisher *progress.Publisher
	coord     *analysis.Coordinator
	sessions  *session.Tracker
	jobStore  *jobs.Store
	runner    *jobs.Runner
	sched     *scheduler.Scheduler
	watch     *watcher.Watcher
	server    *api.Server

	// Shutdown coordination
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedAt time.Time
	mu        sync.RWMutex
}

// State is a point-in-time description of a running daemon.
type State struct {
	PID             int       `json:"pid"`
	StartedAt       time.Time `json:"startedAt"`
	Addr            string    `json:"addr"`
	Version         string    `json:"version"`
	Uptime          string    `json:"uptime"`
	JobsQueued      int       `json:"jobsQueued"`
	ProjectsWatched int       `json:"projectsWatched"`
}

// New builds a daemon and its components for projectRoot. Nothing is
// started; call Start.
func New(projectRoot string, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	root, err := paths.CanonicalAbs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		projectRoot: root,
		cfg:         cfg,
		logger:      logger,
		pid:         NewPIDFile(root),
		ctx:         ctx,
		cancel:      cancel,
	}

	d.store = insights.NewStore(logger)
	d.publisher = progress.NewPublisher(logger)
	d.coord = analysis.NewCoordinator(cfg, d.store, d.publisher, logger)

	d.sessions, err = session.Open(root, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open session tracker: %w", err)
	}

	d.jobStore, err = jobs.OpenStore(root, logger)
	if err != nil {
		cancel()
		d.sessions.Close()
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	d.runner = jobs.NewRunner(d.jobStore, logger, jobs.DefaultRunnerConfig())
	jobs.RegisterDefaultHandlers(d.runner, d.coord, d.store, logger)

	d.sched, err = scheduler.New(root, logger, scheduler.Config{
		CheckInterval: time.Duration(cfg.Scheduler.CheckIntervalMs) * time.Millisecond,
	})
	if err != nil {
		cancel()
		d.sessions.Close()
		d.jobStore.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.registerMaintenance()

	d.watch = watcher.New(watcher.FromProjectConfig(cfg), logger, d.onTreeChange)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	d.server = api.NewServer(addr, api.Deps{
		Coordinator: d.coord,
		Insights:    d.store,
		Sessions:    d.sessions,
		Publisher:   d.publisher,
		Jobs:        d.runner,
		Scheduler:   d.sched,
		Watcher:     d.watch,
	}, logger)

	return d, nil
}

// Start acquires the PID file and brings every component up. The HTTP
// server runs on its own goroutine until Stop.
func (d *Daemon) Start() error {
	d.logger.Info("starting daemon", "version", version.Version, "projectRoot", d.projectRoot)

	if err := d.pid.Acquire(); err != nil {
		return fmt.Errorf("failed to acquire pid file: %w", err)
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	if err := d.runner.Start(); err != nil {
		d.logger.Error("failed to start job runner", "error", err)
	}

	if d.cfg.Scheduler.Enabled {
		if err := d.sched.Start(); err != nil {
			d.logger.Error("failed to start scheduler", "error", err)
		} else {
			d.ensureSchedules()
		}
	}

	if err := d.watch.WatchProject(d.projectRoot); err != nil {
		d.logger.Warn("failed to watch project tree", "error", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Start(); err != nil {
			d.logger.Error("http server error", "error", err)
		}
	}()

	d.logger.Info("daemon started", "pid", os.Getpid(), "addr", d.server.Addr())
	return nil
}

// ensureSchedules creates the maintenance schedules if this project does
// not have them yet. Existing rows keep their expressions so manual edits
// survive restarts.
func (d *Daemon) ensureSchedules() {
	sweep := fmt.Sprintf("every %dm", d.cfg.Scheduler.SweepMinutes)
	if _, err := d.sched.EnsureSchedule(scheduler.TaskTypeFreshnessSweep, d.projectRoot, sweep); err != nil {
		d.logger.Warn("failed to ensure freshness sweep schedule", "error", err)
	}
	if _, err := d.sched.EnsureSchedule(scheduler.TaskTypeJobsCleanup, "", "daily at 03:30"); err != nil {
		d.logger.Warn("failed to ensure jobs cleanup schedule", "error", err)
	}
}

// onTreeChange handles debounced file change batches from the watcher.
func (d *Daemon) onTreeChange(projectPath string, events []watcher.Event) {
	d.logger.Info("tree changed, queueing re-analysis", "project", projectPath, "events", len(events))

	if d.hasPendingAnalysis(projectPath) {
		d.logger.Debug("analysis already pending, skipping", "project", projectPath)
		return
	}

	job, err := jobs.NewJob(jobs.JobTypeFullAnalysis, jobs.AnalyzeScope{
		ProjectPath: projectPath,
		Force:       true,
	})
	if err != nil {
		d.logger.Error("failed to create analysis job", "error", err)
		return
	}
	if err := d.runner.Submit(job); err != nil {
		d.logger.Error("failed to queue analysis job", "error", err)
	}
}

// hasPendingAnalysis reports whether a full analysis for projectPath is
// already queued or running, so change bursts do not pile up duplicate
// jobs behind the debouncer.
func (d *Daemon) hasPendingAnalysis(projectPath string) bool {
	list, err := d.runner.ListJobs(jobs.ListJobsOptions{
		Type:   []jobs.JobType{jobs.JobTypeFullAnalysis},
		Status: []jobs.JobStatus{jobs.JobQueued, jobs.JobRunning},
	})
	if err != nil {
		return false
	}
	for i := range list.Jobs {
		job, err := d.runner.GetJob(list.Jobs[i].ID)
		if err != nil || job == nil {
			continue
		}
		scope, err := jobs.ParseAnalyzeScope(job.Scope)
		if err == nil && scope.ProjectPath == projectPath {
			return true
		}
	}
	return false
}

// Stop shuts the daemon down: producers first so nothing new is queued,
// then the runner drains, then the HTTP server, then storage.
func (d *Daemon) Stop() error {
	d.logger.Info("stopping daemon")

	d.cancel()

	if d.watch != nil {
		d.watch.Stop()
	}
	if d.sched != nil {
		if err := d.sched.Stop(shutdownTimeout); err != nil {
			d.logger.Warn("scheduler shutdown error", "error", err)
		}
	}
	if d.runner != nil {
		if err := d.runner.Stop(shutdownTimeout); err != nil {
			d.logger.Warn("job runner shutdown error", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("http server shutdown error", "error", err)
		}
	}

	d.wg.Wait()

	if d.sessions != nil {
		if err := d.sessions.Close(); err != nil {
			d.logger.Warn("session tracker close error", "error", err)
		}
	}
	if d.jobStore != nil {
		if err := d.jobStore.Close(); err != nil {
			d.logger.Warn("job store close error", "error", err)
		}
	}

	if err := d.pid.Release(); err != nil {
		d.logger.Warn("failed to release pid file", "error", err)
	}

	d.logger.Info("daemon stopped")
	return nil
}

// Wait blocks until the daemon receives SIGINT or SIGTERM, or its
// context is cancelled.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info("received signal", "signal", sig.String())
	case <-d.ctx.Done():
		d.logger.Info("context cancelled")
	}
}

// State reports the running daemon's vitals.
func (d *Daemon) State() *State {
	d.mu.RLock()
	startedAt := d.startedAt
	d.mu.RUnlock()

	st := &State{
		PID:       os.Getpid(),
		StartedAt: startedAt,
		Addr:      d.server.Addr(),
		Version:   version.Version,
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
	}
	if d.runner != nil {
		st.JobsQueued = d.runner.QueueLength()
	}
	if d.watch != nil {
		st.ProjectsWatched = len(d.watch.WatchedProjects())
	}
	return st
}

// IsRunning reports whether a daemon owns the project's PID file.
func IsRunning(projectRoot string) (bool, int, error) {
	return NewPIDFile(projectRoot).IsRunning()
}

// StopRemote signals the daemon serving projectRoot with SIGTERM and
// waits for it to exit.
func StopRemote(projectRoot string) error {
	pid := NewPIDFile(projectRoot)
	running, processID, err := pid.IsRunning()
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(processID)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}

	timeout := time.After(shutdownTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for daemon to stop")
		case <-ticker.C:
			if running, _, _ := pid.IsRunning(); !running {
				return nil
			}
		}
	}
}
