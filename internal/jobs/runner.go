package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobHandler executes a specific type of job. The progress callback
// persists 0-100 progress to the job row as work advances.
type JobHandler func(ctx context.Context, job *Job, progress func(int)) (interface{}, error)

// Runner manages background job execution over a worker pool. Queued
// jobs are persisted before they enter the in-memory queue, so a full
// queue or a restart never loses work.
type Runner struct {
	store    *Store
	logger   *slog.Logger
	handlers map[JobType]JobHandler

	queue       chan *Job
	queueSize   int
	workerCount int

	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup

	processedCount atomic.Int64
	failedCount    atomic.Int64

	recoveryInterval time.Duration
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize   int
	WorkerCount int
	// RecoveryInterval is how often the runner re-checks the database
	// for queued jobs that never made it into the in-memory queue.
	RecoveryInterval time.Duration
}

// DefaultRunnerConfig returns the default runner configuration. A
// single worker keeps concurrent walks of the same project from
// fighting over the disk.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:        100,
		WorkerCount:      1,
		RecoveryInterval: 30 * time.Second,
	}
}

// NewRunner creates a new job runner.
func NewRunner(store *Store, logger *slog.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = 30 * time.Second
	}

	return &Runner{
		store:            store,
		logger:           logger,
		handlers:         make(map[JobType]JobHandler),
		queue:            make(chan *Job, config.QueueSize),
		queueSize:        config.QueueSize,
		workerCount:      config.WorkerCount,
		done:             make(chan struct{}),
		cancel:           make(map[string]context.CancelFunc),
		recoveryInterval: config.RecoveryInterval,
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("job handler registered", "type", jobType)
}

// Start begins processing jobs. Jobs left queued by a previous process
// are re-enqueued immediately and again on every recovery tick.
func (r *Runner) Start() error {
	r.logger.Info("starting job runner",
		"workers", r.workerCount,
		"queueSize", r.queueSize,
		"recoveryInterval", r.recoveryInterval.String())

	// Rows left running by a dead process can never finish.
	if n, err := r.store.FailOrphanedJobs(); err != nil {
		r.logger.Warn("failed to mark orphaned jobs", "error", err)
	} else if n > 0 {
		r.logger.Info("marked orphaned jobs as failed", "count", n)
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.recoveryLoop()

	r.recoverPendingJobs()

	return nil
}

// recoveryLoop periodically re-enqueues orphaned queued jobs.
func (r *Runner) recoveryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.recoverPendingJobs()
		case <-r.done:
			return
		}
	}
}

// recoverPendingJobs loads queued jobs from the database and enqueues
// as many as fit.
func (r *Runner) recoverPendingJobs() {
	pending, err := r.store.GetPendingJobs()
	if err != nil {
		r.logger.Warn("failed to recover pending jobs", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	recovered := 0
	for _, job := range pending {
		select {
		case r.queue <- job:
			recovered++
		default:
			// Queue still full, the rest wait for the next tick.
		}
	}

	if recovered > 0 {
		r.logger.Info("recovered pending jobs",
			"recovered", recovered, "remaining", len(pending)-recovered)
	}
}

// Stop gracefully shuts down the runner, cancelling running jobs.
func (r *Runner) Stop(timeout time.Duration) error {
	r.logger.Info("stopping job runner")

	close(r.done)

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("cancelling running job", "jobId", id)
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("job runner stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit persists a job and adds it to the queue. When the queue is
// full the job stays in the database and the recovery loop picks it up
// later.
func (r *Runner) Submit(job *Job) error {
	if err := r.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	select {
	case r.queue <- job:
		r.logger.Debug("job queued", "jobId", job.ID, "type", job.Type)
		return nil
	case <-time.After(100 * time.Millisecond):
		r.logger.Warn("job queue full, job will be processed later", "jobId", job.ID)
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	}
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	if cancel, ok := r.cancel[jobID]; ok {
		cancel()
	}
	r.mu.Unlock()

	job.MarkCancelled()
	return r.store.UpdateJob(job)
}

// GetJob retrieves a job by ID.
func (r *Runner) GetJob(jobID string) (*Job, error) {
	return r.store.GetJob(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	return r.store.ListJobs(opts)
}

// worker processes jobs from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("job worker started", "workerId", id)

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)

		case <-r.done:
			r.logger.Debug("job worker stopping", "workerId", id)
			return
		}
	}
}

// processJob executes a single job.
func (r *Runner) processJob(job *Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("no handler for job type", "jobId", job.ID, "type", job.Type)
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		_ = r.store.UpdateJob(job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[job.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	// The row is authoritative: a cancel may have landed while the job
	// sat in the queue, and the recovery loop can enqueue duplicates.
	// Registering the cancel func first means a concurrent Cancel either
	// beats the claim (claim fails) or finds the func and aborts us.
	job.MarkStarted()
	claimed, err := r.store.ClaimJob(job.ID, *job.StartedAt)
	if err != nil {
		r.logger.Error("failed to claim job", "jobId", job.ID, "error", err)
		return
	}
	if !claimed {
		r.logger.Debug("job no longer queued, skipping", "jobId", job.ID)
		return
	}

	r.logger.Info("processing job", "jobId", job.ID, "type", job.Type)

	progress := func(pct int) {
		job.SetProgress(pct)
		if err := r.store.UpdateJob(job); err != nil {
			r.logger.Warn("failed to update job progress", "jobId", job.ID, "error", err)
		}
	}

	startTime := time.Now()
	result, err := handler(ctx, job, progress)
	duration := time.Since(startTime)

	if err != nil {
		if ctx.Err() == context.Canceled {
			job.MarkCancelled()
			r.logger.Info("job cancelled", "jobId", job.ID, "duration", duration.String())
		} else {
			job.MarkFailed(err)
			r.failedCount.Add(1)
			r.logger.Error("job failed",
				"jobId", job.ID, "error", err, "duration", duration.String())
		}
	} else {
		if err := job.MarkCompleted(result); err != nil {
			r.logger.Error("failed to serialize job result", "jobId", job.ID, "error", err)
			job.MarkFailed(err)
		} else {
			r.processedCount.Add(1)
			r.logger.Info("job completed", "jobId", job.ID, "duration", duration.String())
		}
	}

	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("failed to save job final state", "jobId", job.ID, "error", err)
	}
}

// Stats returns runner statistics.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	runningCount := len(r.cancel)
	r.mu.RUnlock()

	return map[string]interface{}{
		"queueLength":    len(r.queue),
		"queueCapacity":  r.queueSize,
		"runningJobs":    runningCount,
		"processedTotal": r.processedCount.Load(),
		"failedTotal":    r.failedCount.Load(),
		"workerCount":    r.workerCount,
	}
}

// QueueLength returns the current queue length.
func (r *Runner) QueueLength() int {
	return len(r.queue)
}

// IsRunning returns true if the runner is active.
func (r *Runner) IsRunning() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
