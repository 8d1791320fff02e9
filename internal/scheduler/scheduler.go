package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leviatan/internal/slogutil"
)

// TaskHandler executes one scheduled task.
type TaskHandler func(ctx context.Context, schedule *Schedule) error

// Scheduler fires due schedules from a periodic check loop. Handlers
// run sequentially within a check pass, so long tasks should submit a
// job rather than do the work inline.
type Scheduler struct {
	store    *Store
	logger   *slog.Logger
	handlers map[TaskType]TaskHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	checkInterval time.Duration
}

// Config contains scheduler configuration.
type Config struct {
	// CheckInterval is how often due schedules are looked up.
	CheckInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: time.Minute}
}

// New creates a scheduler persisting to the project's jobs database.
func New(projectRoot string, logger *slog.Logger, config Config) (*Scheduler, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}

	store, err := OpenStore(projectRoot, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:         store,
		logger:        logger,
		handlers:      make(map[TaskType]TaskHandler),
		ctx:           ctx,
		cancel:        cancel,
		checkInterval: config.CheckInterval,
	}, nil
}

// RegisterHandler registers a handler for a task type.
func (s *Scheduler) RegisterHandler(taskType TaskType, handler TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = handler
	s.logger.Debug("schedule handler registered", "taskType", taskType)
}

// Start begins the check loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", "checkInterval", s.checkInterval.String())

	s.wg.Add(1)
	go s.run()

	return nil
}

// Stop stops the check loop and closes the store.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.logger.Info("stopping scheduler")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return s.store.Close()
	case <-time.After(timeout):
		return fmt.Errorf("scheduler shutdown timed out after %v", timeout)
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.checkDueSchedules()

	for {
		select {
		case <-ticker.C:
			s.checkDueSchedules()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) checkDueSchedules() {
	schedules, err := s.store.GetDueSchedules()
	if err != nil {
		s.logger.Error("failed to load due schedules", "error", err)
		return
	}

	for _, schedule := range schedules {
		s.executeSchedule(schedule)
	}
}

func (s *Scheduler) executeSchedule(schedule *Schedule) {
	s.mu.RLock()
	handler, ok := s.handlers[schedule.TaskType]
	s.mu.RUnlock()

	if !ok {
		s.logger.Warn("no handler for scheduled task",
			"scheduleId", schedule.ID, "taskType", schedule.TaskType)
		return
	}

	s.logger.Info("running scheduled task",
		"scheduleId", schedule.ID, "taskType", schedule.TaskType, "target", schedule.Target)

	startTime := time.Now()
	err := handler(s.ctx, schedule)
	duration := time.Since(startTime)

	var errMsg string
	if err != nil {
		errMsg = err.Error()
		s.logger.Error("scheduled task failed",
			"scheduleId", schedule.ID, "error", err, "duration", duration.String())
	} else {
		s.logger.Info("scheduled task completed",
			"scheduleId", schedule.ID, "duration", duration.String())
	}

	if markErr := schedule.MarkRun(err == nil, duration, errMsg); markErr != nil {
		s.logger.Error("failed to compute next run", "scheduleId", schedule.ID, "error", markErr)
	}
	if updateErr := s.store.UpdateSchedule(schedule); updateErr != nil {
		s.logger.Error("failed to save schedule", "scheduleId", schedule.ID, "error", updateErr)
	}
}

// AddSchedule persists a new schedule.
func (s *Scheduler) AddSchedule(schedule *Schedule) error {
	return s.store.CreateSchedule(schedule)
}

// EnsureSchedule creates a schedule when none exists for the task type
// and target. An existing schedule keeps its tuned expression.
func (s *Scheduler) EnsureSchedule(taskType TaskType, target, expression string) (*Schedule, error) {
	existing, err := s.store.FindSchedule(taskType, target)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	schedule, err := NewSchedule(taskType, target, expression)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSchedule(schedule); err != nil {
		return nil, err
	}

	s.logger.Info("schedule created",
		"scheduleId", schedule.ID, "taskType", taskType, "expression", expression)
	return schedule, nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Scheduler) GetSchedule(id string) (*Schedule, error) {
	return s.store.GetSchedule(id)
}

// DeleteSchedule removes a schedule.
func (s *Scheduler) DeleteSchedule(id string) error {
	return s.store.DeleteSchedule(id)
}

// ListSchedules lists schedules with filters.
func (s *Scheduler) ListSchedules(opts ListSchedulesOptions) (*ListSchedulesResponse, error) {
	return s.store.ListSchedules(opts)
}

// EnableSchedule enables a schedule and recomputes its next run.
func (s *Scheduler) EnableSchedule(id string) error {
	schedule, err := s.requireSchedule(id)
	if err != nil {
		return err
	}

	nextRun, err := NextRunTime(schedule.Expression, time.Now())
	if err != nil {
		return err
	}
	schedule.Enabled = true
	schedule.NextRun = nextRun
	schedule.UpdatedAt = time.Now().UTC()
	return s.store.UpdateSchedule(schedule)
}

// DisableSchedule disables a schedule.
func (s *Scheduler) DisableSchedule(id string) error {
	schedule, err := s.requireSchedule(id)
	if err != nil {
		return err
	}

	schedule.Enabled = false
	schedule.UpdatedAt = time.Now().UTC()
	return s.store.UpdateSchedule(schedule)
}

// RunNow executes a schedule immediately, regardless of its next run.
func (s *Scheduler) RunNow(id string) error {
	schedule, err := s.requireSchedule(id)
	if err != nil {
		return err
	}

	s.executeSchedule(schedule)
	return nil
}

func (s *Scheduler) requireSchedule(id string) (*Schedule, error) {
	schedule, err := s.store.GetSchedule(id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return schedule, nil
}
