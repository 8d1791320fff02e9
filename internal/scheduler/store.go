package scheduler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"leviatan/internal/paths"
)

// Store persists schedules in the workspace jobs database. The jobs
// package keeps its own tables in the same file over its own
// connection; WAL mode and the busy timeout make that safe.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// OpenStore opens or creates the schedule tables for a project root.
func OpenStore(projectRoot string, logger *slog.Logger) (*Store, error) {
	dbPath := paths.JobsDBPath(projectRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schedule schema: %w", err)
	}

	return store, nil
}

// initializeSchema creates the schedule tables. Safe to run on every
// open; the shared file may already exist with only the jobs tables.
func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			target TEXT,
			expression TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			next_run TEXT NOT NULL,
			last_run TEXT,
			last_status TEXT,
			last_duration INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run);
		CREATE INDEX IF NOT EXISTS idx_schedules_task_type ON schedules(task_type);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

const scheduleColumns = "id, task_type, target, expression, enabled, next_run, last_run, last_status, last_duration, last_error, created_at, updated_at"

// CreateSchedule inserts a new schedule.
func (s *Store) CreateSchedule(schedule *Schedule) error {
	_, err := s.conn.Exec(`
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		string(schedule.TaskType),
		nullString(schedule.Target),
		schedule.Expression,
		schedule.Enabled,
		formatTime(schedule.NextRun),
		nullTime(schedule.LastRun),
		nullString(schedule.LastStatus),
		schedule.LastDuration,
		nullString(schedule.LastError),
		formatTime(schedule.CreatedAt),
		formatTime(schedule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Debug("schedule created", "scheduleId", schedule.ID, "taskType", schedule.TaskType)
	return nil
}

// GetSchedule retrieves a schedule by ID. Returns nil when no schedule
// exists with that ID.
func (s *Store) GetSchedule(id string) (*Schedule, error) {
	row := s.conn.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)

	schedule, err := s.scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// FindSchedule returns the schedule for a task type and target, or nil
// when none exists.
func (s *Store) FindSchedule(taskType TaskType, target string) (*Schedule, error) {
	row := s.conn.QueryRow(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE task_type = ? AND IFNULL(target, '') = ?`,
		string(taskType), target)

	schedule, err := s.scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}
	return schedule, nil
}

// UpdateSchedule updates an existing schedule.
func (s *Store) UpdateSchedule(schedule *Schedule) error {
	result, err := s.conn.Exec(`
		UPDATE schedules SET
			task_type = ?,
			target = ?,
			expression = ?,
			enabled = ?,
			next_run = ?,
			last_run = ?,
			last_status = ?,
			last_duration = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ?`,
		string(schedule.TaskType),
		nullString(schedule.Target),
		schedule.Expression,
		schedule.Enabled,
		formatTime(schedule.NextRun),
		nullTime(schedule.LastRun),
		nullString(schedule.LastStatus),
		schedule.LastDuration,
		nullString(schedule.LastError),
		formatTime(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("schedule not found: %s", schedule.ID)
	}
	return nil
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(id string) error {
	_, err := s.conn.Exec("DELETE FROM schedules WHERE id = ?", id)
	return err
}

// ListSchedules lists schedules with filters, soonest next run first.
func (s *Store) ListSchedules(opts ListSchedulesOptions) (*ListSchedulesResponse, error) {
	var conditions []string
	var args []interface{}

	if len(opts.TaskType) > 0 {
		placeholders := make([]string, len(opts.TaskType))
		for i, taskType := range opts.TaskType {
			placeholders[i] = "?"
			args = append(args, string(taskType))
		}
		conditions = append(conditions, fmt.Sprintf("task_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Enabled != nil {
		conditions = append(conditions, "enabled = ?")
		args = append(args, *opts.Enabled)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM schedules %s", whereClause)
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count schedules: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM schedules %s
		ORDER BY next_run ASC
		LIMIT ? OFFSET ?`, scheduleColumns, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []ScheduleSummary
	for rows.Next() {
		schedule, err := s.scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule.ToSummary())
	}

	return &ListSchedulesResponse{
		Schedules:  schedules,
		TotalCount: totalCount,
	}, rows.Err()
}

// GetDueSchedules returns enabled schedules whose next run has passed,
// most overdue first.
func (s *Store) GetDueSchedules() ([]*Schedule, error) {
	rows, err := s.conn.Query(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled = 1 AND next_run <= ?
		ORDER BY next_run ASC`,
		formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := s.scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// scanSchedule reads one schedule row. The single-row and multi-row
// paths share it.
func (s *Store) scanSchedule(scan func(dest ...interface{}) error) (*Schedule, error) {
	var schedule Schedule
	var target, lastRun, lastStatus, lastError sql.NullString
	var nextRun, createdAt, updatedAt string
	var enabled int

	err := scan(
		&schedule.ID,
		&schedule.TaskType,
		&target,
		&schedule.Expression,
		&enabled,
		&nextRun,
		&lastRun,
		&lastStatus,
		&schedule.LastDuration,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.Target = target.String
	schedule.Enabled = enabled != 0
	schedule.LastStatus = lastStatus.String
	schedule.LastError = lastError.String

	if schedule.NextRun, err = parseTime(nextRun); err != nil {
		return nil, fmt.Errorf("invalid next_run time: %w", err)
	}
	if schedule.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at time: %w", err)
	}
	if schedule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at time: %w", err)
	}
	if lastRun.Valid {
		t, err := parseTime(lastRun.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_run time: %w", err)
		}
		schedule.LastRun = &t
	}

	return &schedule, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
