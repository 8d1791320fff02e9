package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leviatan/internal/slogutil"
)

func newTestRunner(t *testing.T, config RunnerConfig) (*Runner, *Store) {
	t.Helper()

	store, _ := newTestStore(t)
	runner := NewRunner(store, slogutil.NewDiscardLogger(), config)
	t.Cleanup(func() {
		if runner.IsRunning() {
			runner.Stop(2 * time.Second)
		}
	})
	return runner, store
}

// waitForStatus polls until the job row reaches the wanted status.
func waitForStatus(t *testing.T, store *Store, id string, want JobStatus) *Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(id)
	t.Fatalf("job %s never reached %s, last seen %+v", id, want, job)
	return nil
}

func TestRunnerProcessesJob(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	var calls atomic.Int64
	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		calls.Add(1)
		progress(50)
		return &AnalyzeResult{ProjectPath: "/tmp/demo", TotalFiles: 7}, nil
	})

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, err := NewJob(JobTypeFullAnalysis, AnalyzeScope{ProjectPath: "/tmp/demo"})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := waitForStatus(t, store, job.ID, JobCompleted)
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	if done.Progress != 100 {
		t.Errorf("Progress = %d, want 100", done.Progress)
	}
	if done.Result == "" {
		t.Error("Result should be recorded")
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt should both be set")
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		return nil, errors.New("walk exploded")
	})

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, _ := NewJob(JobTypeFullAnalysis, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	failed := waitForStatus(t, store, job.ID, JobFailed)
	if failed.Error != "walk exploded" {
		t.Errorf("Error = %q, want 'walk exploded'", failed.Error)
	}
}

func TestRunnerNoHandler(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, _ := NewJob(JobTypeExportSnapshot, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	failed := waitForStatus(t, store, job.ID, JobFailed)
	if failed.Error == "" {
		t.Error("missing-handler failure should carry an error message")
	}
}

func TestRunnerCancelRunningJob(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	started := make(chan struct{})
	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, _ := NewJob(JobTypeFullAnalysis, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	if err := runner.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	waitForStatus(t, store, job.ID, JobCancelled)
}

func TestRunnerCancelQueuedJobNeverRuns(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	var calls atomic.Int64
	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		calls.Add(1)
		return nil, nil
	})

	// Submit before Start so the job sits in the queue.
	job, _ := NewJob(JobTypeFullAnalysis, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := runner.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The worker drains the stale queue entry without executing it.
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("handler calls = %d, want 0 for a cancelled job", calls.Load())
	}
	got, _ := store.GetJob(job.ID)
	if got.Status != JobCancelled {
		t.Errorf("Status = %v, want %v", got.Status, JobCancelled)
	}
}

func TestRunnerCancelTerminalJob(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	job := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	if err := job.MarkCompleted(nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	if err := runner.Cancel(job.ID); err == nil {
		t.Error("Cancel() should fail for a completed job")
	}
	if err := runner.Cancel("no-such-job"); err == nil {
		t.Error("Cancel() should fail for an unknown job")
	}
}

func TestRunnerRecoversQueuedJobsOnStart(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	// Persisted directly, as if a previous process queued them and died.
	first := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	second := mustCreateJob(t, store, JobTypeFullAnalysis, nil)

	var calls atomic.Int64
	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		calls.Add(1)
		return nil, nil
	})

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForStatus(t, store, first.ID, JobCompleted)
	waitForStatus(t, store, second.ID, JobCompleted)
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestRunnerFailsOrphansOnStart(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	orphan := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	orphan.MarkStarted()
	if err := store.UpdateJob(orphan); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := waitForStatus(t, store, orphan.ID, JobFailed)
	if got.Error == "" {
		t.Error("orphaned job should record why it failed")
	}
}

func TestRunnerStopCancelsRunningJobs(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	started := make(chan struct{})
	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, _ := NewJob(JobTypeFullAnalysis, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	if err := runner.Stop(2 * time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if runner.IsRunning() {
		t.Error("IsRunning() should be false after Stop")
	}

	got, _ := store.GetJob(job.ID)
	if got.Status != JobCancelled {
		t.Errorf("Status = %v, want %v after shutdown", got.Status, JobCancelled)
	}
}

func TestRunnerStats(t *testing.T) {
	runner, store := newTestRunner(t, RunnerConfig{QueueSize: 4, WorkerCount: 2})

	runner.RegisterHandler(JobTypeFullAnalysis, func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		return nil, nil
	})
	if err := runner.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job, _ := NewJob(JobTypeFullAnalysis, nil)
	if err := runner.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitForStatus(t, store, job.ID, JobCompleted)

	stats := runner.Stats()
	if stats["workerCount"] != 2 {
		t.Errorf("workerCount = %v, want 2", stats["workerCount"])
	}
	if stats["queueCapacity"] != 4 {
		t.Errorf("queueCapacity = %v, want 4", stats["queueCapacity"])
	}
	if stats["processedTotal"].(int64) < 1 {
		t.Errorf("processedTotal = %v, want >= 1", stats["processedTotal"])
	}
}

func TestRunnerListJobs(t *testing.T) {
	runner, store := newTestRunner(t, DefaultRunnerConfig())

	mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	mustCreateJob(t, store, JobTypeExportSnapshot, nil)

	resp, err := runner.ListJobs(ListJobsOptions{Type: []JobType{JobTypeExportSnapshot}})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if resp.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", resp.TotalCount)
	}
}
