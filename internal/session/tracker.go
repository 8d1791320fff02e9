package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"leviatan/internal/errors"
	"leviatan/internal/paths"
	"leviatan/internal/slogutil"
)

// Tracker is the sole writer of session records, action log entries and
// the derived per-project context state.
type Tracker struct {
	logger *slog.Logger
	db     *sql.DB

	mu     sync.Mutex
	states map[string]ContextState
}

// Open opens the session database under the project's workspace directory,
// creating it on first use.
func Open(projectRoot string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	db, err := openDB(paths.SessionsDBPath(projectRoot))
	if err != nil {
		return nil, err
	}
	return &Tracker{
		logger: logger,
		db:     db,
		states: make(map[string]ContextState),
	}, nil
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// StartSession begins a session and returns its id. The id is usable even
// when persistence fails; the caller keeps working, only tracking degrades.
func (t *Tracker) StartSession(ctx context.Context, projectID, userID, goal string) string {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_id, user_id, start_time, session_goal, total_actions, is_active, achievements_json)
		VALUES (?, ?, ?, ?, ?, 0, 1, '[]')
	`, id, projectID, userID, formatTime(now), goal)
	if err != nil {
		t.logger.Warn("failed to persist session, continuing untracked", "session_id", id, "error", err)
		return id
	}

	t.logger.Debug("session started", "session_id", id, "project_id", projectID)
	return id
}

// EndSession closes a session: sets the end time, clears the active flag
// and stores the achievements.
func (t *Tracker) EndSession(ctx context.Context, sessionID string, achievements []string) error {
	if achievements == nil {
		achievements = []string{}
	}
	achJSON, err := json.Marshal(achievements)
	if err != nil {
		return fmt.Errorf("failed to encode achievements: %w", err)
	}

	res, err := t.db.ExecContext(ctx, `
		UPDATE sessions SET end_time = ?, is_active = 0, achievements_json = ?
		WHERE session_id = ?
	`, formatTime(time.Now().UTC()), string(achJSON), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewLeviError(errors.SessionNotFound,
			fmt.Sprintf("session %s not found", sessionID), nil, nil, nil)
	}

	t.logger.Debug("session ended", "session_id", sessionID)
	return nil
}

// LogAction appends an entry to the action log, bumps the session's action
// count and re-derives the project's context state. It never returns an
// error: a persistence failure is recorded as a failed entry for the same
// action (best effort) and otherwise swallowed.
func (t *Tracker) LogAction(ctx context.Context, a Action) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.BeforeState != "" && a.AfterState != "" {
		added, removed := diffStat(a.BeforeState, a.AfterState)
		if a.Data == nil {
			a.Data = make(map[string]interface{})
		}
		a.Data["diffStat"] = map[string]interface{}{
			"linesAdded":   added,
			"linesRemoved": removed,
		}
	}

	err := withTx(t.db, func(tx *sql.Tx) error {
		if err := insertAction(ctx, tx, a); err != nil {
			return err
		}
		if a.SessionID == "" {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE sessions SET total_actions = total_actions + 1 WHERE session_id = ?",
			a.SessionID)
		return err
	})
	if err != nil {
		t.logger.Warn("failed to log action", "action_type", a.Type, "project_id", a.ProjectID, "error", err)
		if t.logFailure(ctx, a, err) {
			t.inferState(a.ProjectID, a.Type)
		}
		return
	}

	t.inferState(a.ProjectID, a.Type)
}

// logFailure writes the failed twin of an entry that could not be
// persisted. The payload fields are dropped since they may be what broke
// the first write. Returns whether the twin reached the log; if it did
// not, there is nothing left to do.
func (t *Tracker) logFailure(ctx context.Context, a Action, cause error) bool {
	a.Success = false
	a.ErrorMessage = fmt.Sprintf("action logging failed: %v", cause)
	a.Timestamp = time.Now().UTC()
	a.Data = nil
	a.BeforeState = ""
	a.AfterState = ""

	err := withTx(t.db, func(tx *sql.Tx) error {
		return insertAction(ctx, tx, a)
	})
	if err != nil {
		t.logger.Debug("failed to record logging failure", "error", err)
		return false
	}
	return true
}

// inferState applies the action-type mapping to the project's state cell.
// The transition is unconditional for any entry that reached the log, so
// the cell always matches what a replay of the log would produce.
func (t *Tracker) inferState(projectID string, actionType ActionType) {
	target, ok := stateFor(actionType)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.states[projectID]
	if !ok {
		current = StateIdle
	}
	if current == target {
		return
	}
	t.states[projectID] = target
	t.logger.Debug("context state changed", "project_id", projectID, "from", current, "to", target)
}

// CurrentState returns the project's context state, rebuilding it from the
// action log the first time a project is seen after open.
func (t *Tracker) CurrentState(ctx context.Context, projectID string) ContextState {
	t.mu.Lock()
	if state, ok := t.states[projectID]; ok {
		t.mu.Unlock()
		return state
	}
	t.mu.Unlock()

	state := t.rebuildState(ctx, projectID)

	t.mu.Lock()
	t.states[projectID] = state
	t.mu.Unlock()
	return state
}

// rebuildState replays the log newest-first until it finds an action that
// maps to a state. An empty or unreadable log reads as IDLE.
func (t *Tracker) rebuildState(ctx context.Context, projectID string) ContextState {
	rows, err := t.db.QueryContext(ctx, `
		SELECT action_type FROM actions
		WHERE project_id = ?
		ORDER BY id DESC
	`, projectID)
	if err != nil {
		t.logger.Warn("failed to rebuild context state", "project_id", projectID, "error", err)
		return StateIdle
	}
	defer rows.Close()

	for rows.Next() {
		var actionType string
		if err := rows.Scan(&actionType); err != nil {
			break
		}
		if state, ok := stateFor(ActionType(actionType)); ok {
			return state
		}
	}
	return StateIdle
}

// AnalyzeProjectContext aggregates the most recent log entries into a
// summary: current state, per-type counts, the most frequent type, last
// activity and an advisory recommended state.
func (t *Tracker) AnalyzeProjectContext(ctx context.Context, projectID string) (*ContextSummary, error) {
	recent, err := t.RecentActions(ctx, projectID, recentWindow)
	if err != nil {
		return nil, err
	}

	counts := make(map[ActionType]uint64)
	for _, a := range recent {
		counts[a.Type]++
	}

	current := t.CurrentState(ctx, projectID)
	summary := &ContextSummary{
		ProjectID:        projectID,
		CurrentState:     current,
		ActionCounts:     counts,
		MostFrequent:     mostFrequent(counts),
		RecentActions:    len(recent),
		RecommendedState: recommendState(counts, current),
	}
	if len(recent) > 0 {
		last := recent[0].Timestamp
		summary.LastActivity = &last
	}
	return summary, nil
}

// mostFrequent picks the action type with the highest count. Ties resolve
// to the lexicographically smallest type so the answer is stable.
func mostFrequent(counts map[ActionType]uint64) ActionType {
	var best ActionType
	var bestCount uint64
	for actionType, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || actionType < best)) {
			best = actionType
			bestCount = count
		}
	}
	return best
}

// Session fetches one session record by id.
func (t *Tracker) Session(ctx context.Context, sessionID string) (*Record, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT session_id, project_id, user_id, start_time, end_time, session_goal, total_actions, is_active, achievements_json
		FROM sessions WHERE session_id = ?
	`, sessionID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewLeviError(errors.SessionNotFound,
			fmt.Sprintf("session %s not found", sessionID), nil, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return rec, nil
}

// ActiveSession returns the most recently started session still marked
// active for the project, or nil when there is none.
func (t *Tracker) ActiveSession(ctx context.Context, projectID string) (*Record, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT session_id, project_id, user_id, start_time, end_time, session_goal, total_actions, is_active, achievements_json
		FROM sessions WHERE project_id = ? AND is_active = 1
		ORDER BY rowid DESC LIMIT 1
	`, projectID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active session: %w", err)
	}
	return rec, nil
}

// ProjectSessions lists the project's sessions, most recent first.
func (t *Tracker) ProjectSessions(ctx context.Context, projectID string) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT session_id, project_id, user_id, start_time, end_time, session_goal, total_actions, is_active, achievements_json
		FROM sessions WHERE project_id = ?
		ORDER BY rowid DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read session row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// RecentActions returns up to limit log entries for the project, most
// recent first.
func (t *Tracker) RecentActions(ctx context.Context, projectID string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = recentWindow
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT session_id, project_id, user_id, action_type, description, action_data_json, file_path, before_state, after_state, success, error_message, duration_ms, timestamp
		FROM actions WHERE project_id = ?
		ORDER BY id DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read action log: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read action row: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func insertAction(ctx context.Context, tx *sql.Tx, a Action) error {
	dataJSON := ""
	if len(a.Data) > 0 {
		raw, err := json.Marshal(a.Data)
		if err != nil {
			return fmt.Errorf("failed to encode action data: %w", err)
		}
		dataJSON = string(raw)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO actions (session_id, project_id, user_id, action_type, description, action_data_json, file_path, before_state, after_state, success, error_message, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.SessionID, a.ProjectID, a.UserID, string(a.Type), a.Description, dataJSON,
		a.FilePath, a.BeforeState, a.AfterState, boolToInt(a.Success), a.ErrorMessage,
		a.DurationMS, formatTime(a.Timestamp))
	return err
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var startTime, achJSON string
	var endTime sql.NullString
	var isActive int

	err := row.Scan(&rec.SessionID, &rec.ProjectID, &rec.UserID, &startTime,
		&endTime, &rec.SessionGoal, &rec.TotalActions, &isActive, &achJSON)
	if err != nil {
		return nil, err
	}

	rec.StartTime = parseTime(startTime)
	if endTime.Valid && endTime.String != "" {
		end := parseTime(endTime.String)
		rec.EndTime = &end
	}
	rec.IsActive = isActive != 0
	rec.Achievements = []string{}
	if achJSON != "" {
		_ = json.Unmarshal([]byte(achJSON), &rec.Achievements)
	}
	if rec.Achievements == nil {
		rec.Achievements = []string{}
	}
	return &rec, nil
}

func scanAction(row rowScanner) (Action, error) {
	var a Action
	var actionType, dataJSON, timestamp string
	var success int

	err := row.Scan(&a.SessionID, &a.ProjectID, &a.UserID, &actionType,
		&a.Description, &dataJSON, &a.FilePath, &a.BeforeState, &a.AfterState,
		&success, &a.ErrorMessage, &a.DurationMS, &timestamp)
	if err != nil {
		return Action{}, err
	}

	a.Type = ActionType(actionType)
	a.Success = success != 0
	a.Timestamp = parseTime(timestamp)
	if dataJSON != "" {
		_ = json.Unmarshal([]byte(dataJSON), &a.Data)
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
