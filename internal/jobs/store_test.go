package jobs

import (
	"testing"
	"time"

	"leviatan/internal/slogutil"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	root := t.TempDir()
	store, err := OpenStore(root, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, root
}

func mustCreateJob(t *testing.T, store *Store, jobType JobType, scope interface{}) *Job {
	t.Helper()

	job, err := NewJob(jobType, scope)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return job
}

func TestStoreCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	job := mustCreateJob(t, store, JobTypeFullAnalysis, AnalyzeScope{ProjectPath: "/tmp/demo"})

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetJob() returned nil for existing job")
	}
	if got.ID != job.ID {
		t.Errorf("ID = %q, want %q", got.ID, job.ID)
	}
	if got.Type != JobTypeFullAnalysis {
		t.Errorf("Type = %v, want %v", got.Type, JobTypeFullAnalysis)
	}
	if got.Status != JobQueued {
		t.Errorf("Status = %v, want %v", got.Status, JobQueued)
	}
	if got.Scope == "" {
		t.Error("Scope should round-trip")
	}
	if got.StartedAt != nil {
		t.Error("StartedAt should be nil for a queued job")
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetJob("no-such-job")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetJob() = %+v, want nil", got)
	}
}

func TestStoreUpdateJob(t *testing.T) {
	store, _ := newTestStore(t)

	job := mustCreateJob(t, store, JobTypeFullAnalysis, nil)

	job.MarkStarted()
	job.SetProgress(40)
	if err := store.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != JobRunning {
		t.Errorf("Status = %v, want %v", got.Status, JobRunning)
	}
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should round-trip")
	}

	if err := job.MarkCompleted(&AnalyzeResult{TotalFiles: 3}); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	got, _ = store.GetJob(job.ID)
	if got.Status != JobCompleted {
		t.Errorf("Status = %v, want %v", got.Status, JobCompleted)
	}
	if got.Result == "" {
		t.Error("Result should round-trip")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should round-trip")
	}
}

func TestStoreUpdateMissingJob(t *testing.T) {
	store, _ := newTestStore(t)

	job := &Job{ID: "ghost", Status: JobRunning}
	if err := store.UpdateJob(job); err == nil {
		t.Error("UpdateJob() should fail for a missing job")
	}
}

func TestStoreListJobs(t *testing.T) {
	store, _ := newTestStore(t)

	// Explicit creation times make the newest-first ordering
	// deterministic.
	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		job, err := NewJob(JobTypeFullAnalysis, nil)
		if err != nil {
			t.Fatalf("NewJob() error = %v", err)
		}
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
		ids = append(ids, job.ID)
	}

	exportJob := mustCreateJob(t, store, JobTypeExportSnapshot, nil)
	exportJob.MarkFailed(nil)
	if err := store.UpdateJob(exportJob); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	t.Run("all newest first", func(t *testing.T) {
		resp, err := store.ListJobs(ListJobsOptions{})
		if err != nil {
			t.Fatalf("ListJobs() error = %v", err)
		}
		if resp.TotalCount != 6 {
			t.Errorf("TotalCount = %d, want 6", resp.TotalCount)
		}
		if len(resp.Jobs) != 6 {
			t.Fatalf("len(Jobs) = %d, want 6", len(resp.Jobs))
		}
		if resp.Jobs[0].ID != exportJob.ID {
			t.Errorf("Jobs[0].ID = %q, want newest %q", resp.Jobs[0].ID, exportJob.ID)
		}
		if resp.Jobs[5].ID != ids[0] {
			t.Errorf("Jobs[5].ID = %q, want oldest %q", resp.Jobs[5].ID, ids[0])
		}
	})

	t.Run("status filter", func(t *testing.T) {
		resp, err := store.ListJobs(ListJobsOptions{Status: []JobStatus{JobFailed}})
		if err != nil {
			t.Fatalf("ListJobs() error = %v", err)
		}
		if resp.TotalCount != 1 {
			t.Errorf("TotalCount = %d, want 1", resp.TotalCount)
		}
		if len(resp.Jobs) != 1 || resp.Jobs[0].ID != exportJob.ID {
			t.Errorf("Jobs = %+v, want only the failed export job", resp.Jobs)
		}
	})

	t.Run("type filter", func(t *testing.T) {
		resp, err := store.ListJobs(ListJobsOptions{Type: []JobType{JobTypeFullAnalysis}})
		if err != nil {
			t.Fatalf("ListJobs() error = %v", err)
		}
		if resp.TotalCount != 5 {
			t.Errorf("TotalCount = %d, want 5", resp.TotalCount)
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		resp, err := store.ListJobs(ListJobsOptions{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("ListJobs() error = %v", err)
		}
		if resp.TotalCount != 6 {
			t.Errorf("TotalCount = %d, want 6 despite paging", resp.TotalCount)
		}
		if len(resp.Jobs) != 2 {
			t.Fatalf("len(Jobs) = %d, want 2", len(resp.Jobs))
		}
		if resp.Jobs[0].ID != ids[4] {
			t.Errorf("Jobs[0].ID = %q, want %q", resp.Jobs[0].ID, ids[4])
		}
	})
}

func TestStoreGetPendingJobs(t *testing.T) {
	store, _ := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := NewJob(JobTypeFullAnalysis, nil)
		if err != nil {
			t.Fatalf("NewJob() error = %v", err)
		}
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
		ids = append(ids, job.ID)
	}

	done := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	if err := done.MarkCompleted(nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.UpdateJob(done); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	pending, err := store.GetPendingJobs()
	if err != nil {
		t.Fatalf("GetPendingJobs() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	// Oldest first so recovery preserves submission order.
	for i, job := range pending {
		if job.ID != ids[i] {
			t.Errorf("pending[%d].ID = %q, want %q", i, job.ID, ids[i])
		}
	}
}

func TestStoreClaimJob(t *testing.T) {
	store, _ := newTestStore(t)

	job := mustCreateJob(t, store, JobTypeFullAnalysis, nil)

	claimed, err := store.ClaimJob(job.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	got, _ := store.GetJob(job.ID)
	if got.Status != JobRunning {
		t.Errorf("Status = %v, want %v", got.Status, JobRunning)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should be set by claim")
	}

	claimed, err = store.ClaimJob(job.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if claimed {
		t.Error("second claim should fail")
	}

	t.Run("cancelled job cannot be claimed", func(t *testing.T) {
		cancelled := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
		cancelled.MarkCancelled()
		if err := store.UpdateJob(cancelled); err != nil {
			t.Fatalf("UpdateJob() error = %v", err)
		}

		claimed, err := store.ClaimJob(cancelled.ID, time.Now().UTC())
		if err != nil {
			t.Fatalf("ClaimJob() error = %v", err)
		}
		if claimed {
			t.Error("claim should fail for a cancelled job")
		}
	})
}

func TestStoreFailOrphanedJobs(t *testing.T) {
	store, _ := newTestStore(t)

	orphan := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	orphan.MarkStarted()
	if err := store.UpdateJob(orphan); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	queued := mustCreateJob(t, store, JobTypeFullAnalysis, nil)

	n, err := store.FailOrphanedJobs()
	if err != nil {
		t.Fatalf("FailOrphanedJobs() error = %v", err)
	}
	if n != 1 {
		t.Errorf("FailOrphanedJobs() = %d, want 1", n)
	}

	got, _ := store.GetJob(orphan.ID)
	if got.Status != JobFailed {
		t.Errorf("orphan Status = %v, want %v", got.Status, JobFailed)
	}
	if got.Error == "" {
		t.Error("orphan should record why it failed")
	}
	if got.CompletedAt == nil {
		t.Error("orphan CompletedAt should be set")
	}

	got, _ = store.GetJob(queued.ID)
	if got.Status != JobQueued {
		t.Errorf("queued job Status = %v, want untouched %v", got.Status, JobQueued)
	}
}

func TestStoreCleanupOldJobs(t *testing.T) {
	store, _ := newTestStore(t)

	old := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	past := time.Now().UTC().Add(-48 * time.Hour)
	old.Status = JobCompleted
	old.CompletedAt = &past
	if err := store.UpdateJob(old); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	recent := mustCreateJob(t, store, JobTypeFullAnalysis, nil)
	if err := recent.MarkCompleted(nil); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := store.UpdateJob(recent); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	stillQueued := mustCreateJob(t, store, JobTypeFullAnalysis, nil)

	removed, err := store.CleanupOldJobs(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldJobs() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupOldJobs() = %d, want 1", removed)
	}

	if got, _ := store.GetJob(old.ID); got != nil {
		t.Error("old completed job should be gone")
	}
	if got, _ := store.GetJob(recent.ID); got == nil {
		t.Error("recent job should survive")
	}
	if got, _ := store.GetJob(stillQueued.ID); got == nil {
		t.Error("queued job should survive regardless of age")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	root := t.TempDir()

	store, err := OpenStore(root, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	job := mustCreateJob(t, store, JobTypeFullAnalysis, AnalyzeScope{ProjectPath: root})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenStore(root, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() after reopen error = %v", err)
	}
	if got == nil {
		t.Fatal("job should survive a reopen")
	}
	if got.Scope != job.Scope {
		t.Errorf("Scope = %q, want %q", got.Scope, job.Scope)
	}
}
