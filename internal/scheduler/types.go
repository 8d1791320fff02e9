// Package scheduler runs periodic maintenance in serve mode: a
// freshness sweep that re-analyzes projects with stale snapshots, and
// cleanup of old job history. Schedules persist in the workspace jobs
// database and fire from a single check loop.
package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies what a schedule does.
type TaskType string

const (
	// TaskTypeFreshnessSweep re-analyzes projects whose stored
	// snapshot has aged past the freshness window.
	TaskTypeFreshnessSweep TaskType = "freshness_sweep"
	// TaskTypeJobsCleanup prunes finished job rows past the retention
	// window.
	TaskTypeJobsCleanup TaskType = "jobs_cleanup"
)

// Run outcomes recorded on a schedule.
const (
	ScheduleStatusSuccess = "success"
	ScheduleStatusFailed  = "failed"
)

// Schedule is one periodic task.
type Schedule struct {
	ID       string   `json:"id"`
	TaskType TaskType `json:"taskType"`
	// Target scopes the task, usually a project root. Empty leaves the
	// scope to the handler.
	Target       string     `json:"target,omitempty"`
	Expression   string     `json:"expression"`
	Enabled      bool       `json:"enabled"`
	NextRun      time.Time  `json:"nextRun"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastStatus   string     `json:"lastStatus,omitempty"`
	LastDuration int64      `json:"lastDuration,omitempty"` // milliseconds
	LastError    string     `json:"lastError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewSchedule creates an enabled schedule with its first run computed
// from the expression.
func NewSchedule(taskType TaskType, target, expression string) (*Schedule, error) {
	now := time.Now()
	nextRun, err := NextRunTime(expression, now)
	if err != nil {
		return nil, err
	}

	return &Schedule{
		ID:         uuid.New().String(),
		TaskType:   taskType,
		Target:     target,
		Expression: expression,
		Enabled:    true,
		NextRun:    nextRun,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}, nil
}

// IsDue reports whether the schedule should fire now.
func (s *Schedule) IsDue() bool {
	return s.Enabled && !time.Now().Before(s.NextRun)
}

// MarkRun records a run's outcome and advances NextRun.
func (s *Schedule) MarkRun(success bool, duration time.Duration, errMsg string) error {
	now := time.Now()
	utc := now.UTC()
	s.LastRun = &utc
	s.LastDuration = duration.Milliseconds()
	s.UpdatedAt = utc

	if success {
		s.LastStatus = ScheduleStatusSuccess
		s.LastError = ""
	} else {
		s.LastStatus = ScheduleStatusFailed
		s.LastError = errMsg
	}

	nextRun, err := NextRunTime(s.Expression, now)
	if err != nil {
		return err
	}
	s.NextRun = nextRun
	return nil
}

// ScheduleSummary is a lightweight view for listing.
type ScheduleSummary struct {
	ID         string    `json:"id"`
	TaskType   TaskType  `json:"taskType"`
	Target     string    `json:"target,omitempty"`
	Expression string    `json:"expression"`
	Enabled    bool      `json:"enabled"`
	NextRun    time.Time `json:"nextRun"`
	LastStatus string    `json:"lastStatus,omitempty"`
}

// ToSummary creates a summary view.
func (s *Schedule) ToSummary() ScheduleSummary {
	return ScheduleSummary{
		ID:         s.ID,
		TaskType:   s.TaskType,
		Target:     s.Target,
		Expression: s.Expression,
		Enabled:    s.Enabled,
		NextRun:    s.NextRun,
		LastStatus: s.LastStatus,
	}
}

// ListSchedulesOptions contains filters for listing schedules.
type ListSchedulesOptions struct {
	TaskType []TaskType `json:"taskType,omitempty"`
	Enabled  *bool      `json:"enabled,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// ListSchedulesResponse contains the result of listing schedules.
type ListSchedulesResponse struct {
	Schedules  []ScheduleSummary `json:"schedules"`
	TotalCount int               `json:"totalCount"`
}
