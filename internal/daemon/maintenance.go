package daemon

import (
	"context"
	"time"

	"leviatan/internal/insights"
	"leviatan/internal/jobs"
	"leviatan/internal/scheduler"
)

// jobsRetention is how long terminal jobs stay queryable before the
// cleanup task deletes them.
const jobsRetention = 7 * 24 * time.Hour

func (d *Daemon) registerMaintenance() {
	d.sched.RegisterHandler(scheduler.TaskTypeFreshnessSweep, d.runFreshnessSweep)
	d.sched.RegisterHandler(scheduler.TaskTypeJobsCleanup, d.runJobsCleanup)
}

// runFreshnessSweep queues a forced re-analysis when the schedule's
// target project has no snapshot or a stale one. The work itself goes
// through the job runner so the sweep returns immediately.
func (d *Daemon) runFreshnessSweep(ctx context.Context, sched *scheduler.Schedule) error {
	projectPath := sched.Target

	snap, err := d.store.Read(projectPath)
	if err != nil {
		return err
	}

	maxAge := time.Duration(d.cfg.Analysis.FreshnessHours) * time.Hour
	if insights.IsFresh(snap, maxAge) {
		d.logger.Debug("snapshot still fresh, sweep done", "project", projectPath)
		return nil
	}

	if d.hasPendingAnalysis(projectPath) {
		d.logger.Debug("analysis already pending, sweep done", "project", projectPath)
		return nil
	}

	job, err := jobs.NewJob(jobs.JobTypeFullAnalysis, jobs.AnalyzeScope{
		ProjectPath: projectPath,
		Force:       true,
	})
	if err != nil {
		return err
	}
	if err := d.runner.Submit(job); err != nil {
		return err
	}

	d.logger.Info("freshness sweep queued re-analysis", "project", projectPath, "jobId", job.ID)
	return nil
}

// runJobsCleanup deletes terminal jobs older than the retention window.
func (d *Daemon) runJobsCleanup(ctx context.Context, sched *scheduler.Schedule) error {
	deleted, err := d.jobStore.CleanupOldJobs(jobsRetention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old jobs", "deleted", deleted)
	}
	return nil
}
