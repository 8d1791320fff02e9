package jobs

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

// Store provides job persistence in the workspace jobs database. The
// scheduler keeps its tables in the same file through its own
// connection; WAL mode and the busy timeout make that safe.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// OpenStore opens or creates the jobs database for a project root.
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
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on lock
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
		return nil, fmt.Errorf("failed to initialize jobs schema: %w", err)
	}

	return store, nil
}

// initializeSchema creates the jobs tables. Safe to run on every open.
func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			scope TEXT,
			status TEXT NOT NULL DEFAULT 'queued',
			progress INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT,
			result TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);
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

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// CreateJob inserts a new job.
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (id, type, scope, status, progress, created_at, started_at, completed_at, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.Exec(query,
		job.ID,
		job.Type,
		nullString(job.Scope),
		job.Status,
		job.Progress,
		formatTime(job.CreatedAt),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.Result),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug("job created", "jobId", job.ID, "type", job.Type)
	return nil
}

// GetJob retrieves a job by ID. Returns nil without error when the job
// does not exist.
func (s *Store) GetJob(id string) (*Job, error) {
	query := `
		SELECT id, type, scope, status, progress, created_at, started_at, completed_at, error, result
		FROM jobs WHERE id = ?
	`

	row := s.conn.QueryRow(query, id)
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// UpdateJob updates an existing job's mutable fields.
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs SET
			status = ?,
			progress = ?,
			started_at = ?,
			completed_at = ?,
			error = ?,
			result = ?
		WHERE id = ?
	`

	result, err := s.conn.Exec(query,
		job.Status,
		job.Progress,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.Result),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}

	return nil
}

// ListJobs retrieves job summaries matching the given options, newest
// first.
func (s *Store) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	var conditions []string
	var args []interface{}

	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, status := range opts.Status {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(opts.Type) > 0 {
		placeholders := make([]string, len(opts.Type))
		for i, t := range opts.Type {
			placeholders[i] = "?"
			args = append(args, t)
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", whereClause)
	var totalCount int
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, type, scope, status, progress, created_at, started_at, completed_at, error, result
		FROM jobs %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobSummary
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job.ToSummary())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return &ListJobsResponse{
		Jobs:       jobs,
		TotalCount: totalCount,
	}, nil
}

// ClaimJob atomically moves a queued job to running. Returns false when
// the job was already claimed by another worker, cancelled, or
// finished, so duplicate queue entries never double-execute.
func (s *Store) ClaimJob(id string, startedAt time.Time) (bool, error) {
	result, err := s.conn.Exec(`
		UPDATE jobs SET status = 'running', started_at = ?
		WHERE id = ? AND status = 'queued'
	`, formatTime(startedAt), id)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// FailOrphanedJobs marks jobs left running by a dead process as failed.
// Only call before workers start; after that, running rows are live.
func (s *Store) FailOrphanedJobs() (int64, error) {
	result, err := s.conn.Exec(`
		UPDATE jobs SET status = 'failed', error = 'interrupted by restart', completed_at = ?
		WHERE status = 'running'
	`, formatTime(time.Now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("failed to mark orphaned jobs: %w", err)
	}

	return result.RowsAffected()
}

// GetPendingJobs retrieves all queued jobs, oldest first, so recovery
// preserves submission order.
func (s *Store) GetPendingJobs() ([]*Job, error) {
	query := `
		SELECT id, type, scope, status, progress, created_at, started_at, completed_at, error, result
		FROM jobs WHERE status = 'queued'
		ORDER BY created_at ASC
	`

	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// CleanupOldJobs removes terminal jobs older than the retention window
// and returns how many rows went away.
func (s *Store) CleanupOldJobs(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-retention))

	result, err := s.conn.Exec(`
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	return result.RowsAffected()
}

// scanJob reads one jobs row through any Scan-shaped function, so the
// single-row and multi-row paths share it.
func scanJob(scan func(dest ...interface{}) error) (*Job, error) {
	var job Job
	var scope, startedAt, completedAt, errMsg, result sql.NullString
	var createdAt string

	err := scan(
		&job.ID,
		&job.Type,
		&scope,
		&job.Status,
		&job.Progress,
		&createdAt,
		&startedAt,
		&completedAt,
		&errMsg,
		&result,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Scope = scope.String
	job.Error = errMsg.String
	job.Result = result.String

	if t, err := parseTime(createdAt); err == nil {
		job.CreatedAt = t
	}
	if startedAt.Valid {
		if t, err := parseTime(startedAt.String); err == nil {
			job.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := parseTime(completedAt.String); err == nil {
			job.CompletedAt = &t
		}
	}

	return &job, nil
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
