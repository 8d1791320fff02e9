package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"leviatan/internal/config"
	"leviatan/internal/insights"
	"leviatan/internal/jobs"
	"leviatan/internal/paths"
	"leviatan/internal/scheduler"
	"leviatan/internal/slogutil"
)

func testRoot(t *testing.T) string {
	t.Helper()
	root, err := paths.CanonicalAbs(t.TempDir())
	if err != nil {
		t.Fatalf("CanonicalAbs() error = %v", err)
	}
	return root
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Scheduler.Enabled = false
	cfg.Watcher.Enabled = false
	return cfg
}

// newTestDaemon builds an unstarted daemon and closes its stores on
// cleanup. Tests that call Start use New directly and Stop themselves.
func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testRoot(t), testConfig(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		d.sessions.Close()
		d.jobStore.Close()
		d.sched.Stop(time.Second)
	})
	return d
}

func TestPIDFileAcquireRelease(t *testing.T) {
	root := testRoot(t)
	pid := NewPIDFile(root)

	if err := pid.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	running, got, err := pid.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning() error = %v", err)
	}
	if !running {
		t.Error("expected running after acquire")
	}
	if got != os.Getpid() {
		t.Errorf("PID = %d, want %d", got, os.Getpid())
	}

	if err := NewPIDFile(root).Acquire(); err == nil {
		t.Error("second acquire should fail while the first holds the file")
	}

	if err := pid.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	running, _, err = pid.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning() after release error = %v", err)
	}
	if running {
		t.Error("expected not running after release")
	}

	// Releasing again is fine.
	if err := pid.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestPIDFileStale(t *testing.T) {
	root := testRoot(t)
	pidPath := paths.PIDPath(root)
	if err := os.MkdirAll(filepath.Dir(pidPath), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	pid := NewPIDFile(root)

	// Unparseable content reads as no daemon.
	if err := os.WriteFile(pidPath, []byte("garbage\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	running, _, err := pid.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning() error = %v", err)
	}
	if running {
		t.Error("unparseable PID file should read as not running")
	}

	// A PID past the kernel's pid_max belongs to no live process, so the
	// file is stale and a new daemon takes it over.
	if err := os.WriteFile(pidPath, []byte("99999999\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	running, _, err = pid.IsRunning()
	if err != nil {
		t.Fatalf("IsRunning() error = %v", err)
	}
	if running {
		t.Error("dead PID should read as not running")
	}

	if err := pid.Acquire(); err != nil {
		t.Fatalf("Acquire() over stale file error = %v", err)
	}
	got, err := pid.GetPID()
	if err != nil {
		t.Fatalf("GetPID() error = %v", err)
	}
	if got != os.Getpid() {
		t.Errorf("GetPID() = %d, want %d", got, os.Getpid())
	}
	if err := pid.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestDaemonStartStop(t *testing.T) {
	root := testRoot(t)
	d, err := New(root, testConfig(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	running, pid, err := IsRunning(root)
	if err != nil {
		t.Fatalf("IsRunning() error = %v", err)
	}
	if !running {
		t.Error("expected daemon running after start")
	}
	if pid != os.Getpid() {
		t.Errorf("PID = %d, want %d", pid, os.Getpid())
	}

	st := d.State()
	if st.PID != os.Getpid() {
		t.Errorf("State().PID = %d, want %d", st.PID, os.Getpid())
	}
	if st.Version == "" {
		t.Error("State().Version should be set")
	}
	if st.StartedAt.IsZero() {
		t.Error("State().StartedAt should be set")
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	running, _, err = IsRunning(root)
	if err != nil {
		t.Fatalf("IsRunning() after stop error = %v", err)
	}
	if running {
		t.Error("expected daemon stopped")
	}
}

func TestDaemonSecondInstanceFails(t *testing.T) {
	root := testRoot(t)

	first, err := New(root, testConfig(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	second, err := New(root, testConfig(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("New() second instance error = %v", err)
	}
	t.Cleanup(func() {
		second.sessions.Close()
		second.jobStore.Close()
		second.sched.Stop(time.Second)
	})

	if err := second.Start(); err == nil {
		t.Error("second daemon on the same project should fail to start")
	}

	if err := first.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestFreshnessSweepQueuesAnalysis(t *testing.T) {
	d := newTestDaemon(t)
	sched := &scheduler.Schedule{Target: d.projectRoot}

	// No snapshot yet, so the sweep should queue a forced analysis. The
	// runner is not started, so the job stays queued for inspection.
	if err := d.runFreshnessSweep(context.Background(), sched); err != nil {
		t.Fatalf("runFreshnessSweep() error = %v", err)
	}

	list, err := d.runner.ListJobs(jobs.ListJobsOptions{
		Type: []jobs.JobType{jobs.JobTypeFullAnalysis},
	})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if list.TotalCount != 1 {
		t.Fatalf("TotalCount = %d, want 1", list.TotalCount)
	}

	job, err := d.runner.GetJob(list.Jobs[0].ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job == nil {
		t.Fatal("queued job not found")
	}
	if job.Status != jobs.JobQueued {
		t.Errorf("Status = %v, want %v", job.Status, jobs.JobQueued)
	}

	scope, err := jobs.ParseAnalyzeScope(job.Scope)
	if err != nil {
		t.Fatalf("ParseAnalyzeScope() error = %v", err)
	}
	if scope.ProjectPath != d.projectRoot {
		t.Errorf("scope project = %q, want %q", scope.ProjectPath, d.projectRoot)
	}
	if !scope.Force {
		t.Error("sweep jobs should force re-analysis")
	}
}

func TestFreshnessSweepFreshSnapshot(t *testing.T) {
	d := newTestDaemon(t)

	snap := &insights.Snapshot{
		Version:      insights.SnapshotVersion,
		ProjectID:    uuid.NewString(),
		ProjectName:  "demo",
		ProjectPath:  d.projectRoot,
		CreatedAt:    time.Now().UTC(),
		LastAnalyzed: time.Now().UTC(),
	}
	if err := d.store.Write(d.projectRoot, snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := d.runFreshnessSweep(context.Background(), &scheduler.Schedule{Target: d.projectRoot}); err != nil {
		t.Fatalf("runFreshnessSweep() error = %v", err)
	}

	list, err := d.runner.ListJobs(jobs.ListJobsOptions{})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if list.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0 for a fresh snapshot", list.TotalCount)
	}
}

func TestFreshnessSweepStaleSnapshot(t *testing.T) {
	d := newTestDaemon(t)

	// Default freshness window is 24h; a two day old snapshot is due.
	snap := &insights.Snapshot{
		Version:      insights.SnapshotVersion,
		ProjectID:    uuid.NewString(),
		ProjectName:  "demo",
		ProjectPath:  d.projectRoot,
		CreatedAt:    time.Now().UTC().Add(-72 * time.Hour),
		LastAnalyzed: time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := d.store.Write(d.projectRoot, snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := d.runFreshnessSweep(context.Background(), &scheduler.Schedule{Target: d.projectRoot}); err != nil {
		t.Fatalf("runFreshnessSweep() error = %v", err)
	}

	list, err := d.runner.ListJobs(jobs.ListJobsOptions{})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if list.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1 for a stale snapshot", list.TotalCount)
	}
}

func TestFreshnessSweepSkipsPending(t *testing.T) {
	d := newTestDaemon(t)
	sched := &scheduler.Schedule{Target: d.projectRoot}

	if err := d.runFreshnessSweep(context.Background(), sched); err != nil {
		t.Fatalf("runFreshnessSweep() error = %v", err)
	}
	if err := d.runFreshnessSweep(context.Background(), sched); err != nil {
		t.Fatalf("runFreshnessSweep() second pass error = %v", err)
	}

	list, err := d.runner.ListJobs(jobs.ListJobsOptions{})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if list.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1; repeated sweeps must not stack jobs", list.TotalCount)
	}
}

func TestJobsCleanup(t *testing.T) {
	d := newTestDaemon(t)

	old, err := jobs.NewJob(jobs.JobTypeFullAnalysis, nil)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	old.MarkStarted()
	old.MarkCompleted("done")
	completed := time.Now().UTC().Add(-14 * 24 * time.Hour)
	old.CompletedAt = &completed
	if err := d.jobStore.CreateJob(old); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	recent, err := jobs.NewJob(jobs.JobTypeFullAnalysis, nil)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	recent.MarkStarted()
	recent.MarkCompleted("done")
	if err := d.jobStore.CreateJob(recent); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := d.runJobsCleanup(context.Background(), &scheduler.Schedule{}); err != nil {
		t.Fatalf("runJobsCleanup() error = %v", err)
	}

	gone, err := d.jobStore.GetJob(old.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if gone != nil {
		t.Error("job past the retention window should be deleted")
	}

	kept, err := d.jobStore.GetJob(recent.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if kept == nil {
		t.Error("recently completed job should survive cleanup")
	}
}
