package session

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"leviatan/internal/errors"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestStartSession_PersistsRecord(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	id := tr.StartSession(ctx, "proj-1", "dev", "fix the flaky importer")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("StartSession() returned invalid id %q: %v", id, err)
	}

	rec, err := tr.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.ProjectID != "proj-1" || rec.UserID != "dev" {
		t.Errorf("record identity = (%q, %q), want (proj-1, dev)", rec.ProjectID, rec.UserID)
	}
	if rec.SessionGoal != "fix the flaky importer" {
		t.Errorf("SessionGoal = %q", rec.SessionGoal)
	}
	if !rec.IsActive {
		t.Error("new session should be active")
	}
	if rec.EndTime != nil {
		t.Error("new session should have no end time")
	}
	if rec.TotalActions != 0 {
		t.Errorf("TotalActions = %d, want 0", rec.TotalActions)
	}
	if rec.Achievements == nil || len(rec.Achievements) != 0 {
		t.Errorf("Achievements = %v, want empty slice", rec.Achievements)
	}
	if rec.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
}

func TestStartSession_SurvivesClosedDB(t *testing.T) {
	tr := newTracker(t)
	tr.Close()

	id := tr.StartSession(context.Background(), "proj-1", "dev", "")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("StartSession() on closed db returned invalid id %q: %v", id, err)
	}
}

func TestEndSession(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	id := tr.StartSession(ctx, "proj-1", "dev", "")
	if err := tr.EndSession(ctx, id, []string{"migrated schema", "green tests"}); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	rec, err := tr.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.IsActive {
		t.Error("ended session should not be active")
	}
	if rec.EndTime == nil {
		t.Error("ended session should have an end time")
	}
	if len(rec.Achievements) != 2 || rec.Achievements[0] != "migrated schema" {
		t.Errorf("Achievements = %v", rec.Achievements)
	}
}

func TestEndSession_NotFound(t *testing.T) {
	tr := newTracker(t)

	err := tr.EndSession(context.Background(), "no-such-session", nil)
	if !errors.IsCode(err, errors.SessionNotFound) {
		t.Errorf("EndSession() error = %v, want SESSION_NOT_FOUND", err)
	}
}

func TestLogAction_IncrementsTotalActions(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	id := tr.StartSession(ctx, "proj-1", "dev", "")
	for i := 0; i < 3; i++ {
		tr.LogAction(ctx, Action{
			SessionID:   id,
			ProjectID:   "proj-1",
			UserID:      "dev",
			Type:        ActionFileEdit,
			Description: "edited main.go",
			Success:     true,
		})
	}

	rec, err := tr.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.TotalActions != 3 {
		t.Errorf("TotalActions = %d, want 3", rec.TotalActions)
	}
}

func TestLogAction_DiffStat(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	tr.LogAction(ctx, Action{
		ProjectID:   "proj-1",
		Type:        ActionFileEdit,
		FilePath:    "main.go",
		BeforeState: "a\nb\nc\n",
		AfterState:  "a\nx\nc\n",
		Success:     true,
	})

	actions, err := tr.RecentActions(ctx, "proj-1", 10)
	if err != nil {
		t.Fatalf("RecentActions() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}

	stat, ok := actions[0].Data["diffStat"].(map[string]interface{})
	if !ok {
		t.Fatalf("diffStat missing from action data: %v", actions[0].Data)
	}
	if got := stat["linesAdded"].(float64); got != 1 {
		t.Errorf("linesAdded = %v, want 1", got)
	}
	if got := stat["linesRemoved"].(float64); got != 1 {
		t.Errorf("linesRemoved = %v, want 1", got)
	}
}

func TestStateInference(t *testing.T) {
	tests := []struct {
		name  string
		steps []ActionType
		want  ContextState
	}{
		{"empty log stays idle", nil, StateIdle},
		{"file edit implies coding", []ActionType{ActionFileEdit}, StateCoding},
		{"command execute implies testing", []ActionType{ActionCommandExecute}, StateTesting},
		{"test run implies testing", []ActionType{ActionFileEdit, ActionTestRun}, StateTesting},
		{"git operation", []ActionType{ActionGitOperation}, StateGitOperations},
		{"agent execution implies ai assisted", []ActionType{ActionAgentExecution}, StateAIAssisted},
		{"session start implies initializing", []ActionType{ActionSessionStart}, StateInitializing},
		{"unmapped action leaves state alone", []ActionType{ActionDebugSession, ActionSessionEnd}, StateDebugging},
		{"later action wins", []ActionType{ActionBuildOperation, ActionFileDelete}, StateCoding},
	}

	tr := newTracker(t)
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectID := "proj-" + strings.ReplaceAll(tt.name, " ", "-")
			for _, step := range tt.steps {
				tr.LogAction(ctx, Action{ProjectID: projectID, Type: step, Success: true})
			}
			if got := tr.CurrentState(ctx, projectID); got != tt.want {
				t.Errorf("CurrentState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateRebuildFromLog(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	tr1, err := Open(root, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tr1.LogAction(ctx, Action{ProjectID: "proj-1", Type: ActionFileEdit, Success: true})
	tr1.LogAction(ctx, Action{ProjectID: "proj-1", Type: ActionDebugSession, Success: true})
	tr1.LogAction(ctx, Action{ProjectID: "proj-1", Type: ActionSessionEnd, Success: true})
	if got := tr1.CurrentState(ctx, "proj-1"); got != StateDebugging {
		t.Fatalf("CurrentState() before reopen = %q, want %q", got, StateDebugging)
	}
	tr1.Close()

	tr2, err := Open(root, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer tr2.Close()

	if got := tr2.CurrentState(ctx, "proj-1"); got != StateDebugging {
		t.Errorf("CurrentState() after reopen = %q, want %q", got, StateDebugging)
	}
	if got := tr2.CurrentState(ctx, "never-seen"); got != StateIdle {
		t.Errorf("CurrentState() for unknown project = %q, want %q", got, StateIdle)
	}
}

func TestAnalyzeProjectContext(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	for _, at := range []ActionType{ActionFileEdit, ActionFileEdit, ActionTestRun, ActionDebugSession} {
		tr.LogAction(ctx, Action{ProjectID: "proj-1", Type: at, Success: true})
	}

	summary, err := tr.AnalyzeProjectContext(ctx, "proj-1")
	if err != nil {
		t.Fatalf("AnalyzeProjectContext() error = %v", err)
	}
	if summary.CurrentState != StateDebugging {
		t.Errorf("CurrentState = %q, want %q", summary.CurrentState, StateDebugging)
	}
	if summary.RecommendedState != StateDebugging {
		t.Errorf("RecommendedState = %q, want %q", summary.RecommendedState, StateDebugging)
	}
	if summary.MostFrequent != ActionFileEdit {
		t.Errorf("MostFrequent = %q, want %q", summary.MostFrequent, ActionFileEdit)
	}
	if summary.ActionCounts[ActionFileEdit] != 2 || summary.ActionCounts[ActionTestRun] != 1 {
		t.Errorf("ActionCounts = %v", summary.ActionCounts)
	}
	if summary.RecentActions != 4 {
		t.Errorf("RecentActions = %d, want 4", summary.RecentActions)
	}
	if summary.LastActivity == nil {
		t.Error("LastActivity should be set")
	}
}

func TestAnalyzeProjectContext_WindowExcludesOldActions(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	// The debug action falls outside the 20-entry window once the edits
	// pile on top of it.
	tr.LogAction(ctx, Action{ProjectID: "proj-1", Type: ActionDebugSession, Success: true})
	for i := 0; i < recentWindow; i++ {
		tr.LogAction(ctx, Action{ProjectID: "proj-1", Type: ActionFileEdit, Success: true})
	}

	summary, err := tr.AnalyzeProjectContext(ctx, "proj-1")
	if err != nil {
		t.Fatalf("AnalyzeProjectContext() error = %v", err)
	}
	if summary.RecentActions != recentWindow {
		t.Errorf("RecentActions = %d, want %d", summary.RecentActions, recentWindow)
	}
	if summary.ActionCounts[ActionDebugSession] != 0 {
		t.Errorf("debug action should have aged out, counts = %v", summary.ActionCounts)
	}
	if summary.RecommendedState != StateCoding {
		t.Errorf("RecommendedState = %q, want %q", summary.RecommendedState, StateCoding)
	}
}

func TestAnalyzeProjectContext_EmptyLog(t *testing.T) {
	tr := newTracker(t)

	summary, err := tr.AnalyzeProjectContext(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("AnalyzeProjectContext() error = %v", err)
	}
	if summary.CurrentState != StateIdle || summary.RecommendedState != StateIdle {
		t.Errorf("states = (%q, %q), want both IDLE", summary.CurrentState, summary.RecommendedState)
	}
	if summary.MostFrequent != "" {
		t.Errorf("MostFrequent = %q, want empty", summary.MostFrequent)
	}
	if summary.LastActivity != nil {
		t.Error("LastActivity should be nil for an empty log")
	}
}

func TestRecommendState(t *testing.T) {
	tests := []struct {
		name    string
		counts  map[ActionType]uint64
		current ContextState
		want    ContextState
	}{
		{"debug beats testing", map[ActionType]uint64{ActionDebugSession: 1, ActionTestRun: 5}, StateIdle, StateDebugging},
		{"testing beats git", map[ActionType]uint64{ActionTestRun: 1, ActionGitOperation: 3}, StateIdle, StateTesting},
		{"git beats ai", map[ActionType]uint64{ActionGitOperation: 1, ActionAIInteraction: 2}, StateIdle, StateGitOperations},
		{"agent counts as ai", map[ActionType]uint64{ActionAgentExecution: 1, ActionFileEdit: 4}, StateIdle, StateAIAssisted},
		{"file create implies coding", map[ActionType]uint64{ActionFileCreate: 2}, StateIdle, StateCoding},
		{"fallback to current", map[ActionType]uint64{}, StateBuilding, StateBuilding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recommendState(tt.counts, tt.current); got != tt.want {
				t.Errorf("recommendState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMostFrequent(t *testing.T) {
	counts := map[ActionType]uint64{ActionTestRun: 2, ActionFileEdit: 2, ActionGitOperation: 1}
	if got := mostFrequent(counts); got != ActionFileEdit {
		t.Errorf("mostFrequent() = %q, want %q (tie resolves alphabetically)", got, ActionFileEdit)
	}
	if got := mostFrequent(map[ActionType]uint64{}); got != "" {
		t.Errorf("mostFrequent(empty) = %q, want empty", got)
	}
}

func TestLogAction_FailedDoubleWrite(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	id := tr.StartSession(ctx, "proj-1", "dev", "")

	// +Inf is not representable in JSON, so the first write fails before
	// touching the database and the failed twin is recorded instead.
	tr.LogAction(ctx, Action{
		SessionID:   id,
		ProjectID:   "proj-1",
		Type:        ActionTestRun,
		Description: "ran unit tests",
		Data:        map[string]interface{}{"bad": math.Inf(1)},
		Success:     true,
	})

	actions, err := tr.RecentActions(ctx, "proj-1", 10)
	if err != nil {
		t.Fatalf("RecentActions() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1 failed twin", len(actions))
	}
	twin := actions[0]
	if twin.Success {
		t.Error("twin should be marked failed")
	}
	if !strings.Contains(twin.ErrorMessage, "action logging failed") {
		t.Errorf("ErrorMessage = %q", twin.ErrorMessage)
	}
	if twin.Data != nil {
		t.Errorf("twin should drop the payload, got %v", twin.Data)
	}
	if twin.Type != ActionTestRun {
		t.Errorf("twin Type = %q, want %q", twin.Type, ActionTestRun)
	}

	rec, err := tr.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.TotalActions != 0 {
		t.Errorf("TotalActions = %d, want 0 after failed write", rec.TotalActions)
	}

	// The twin reached the log, so state inference still applies.
	if got := tr.CurrentState(ctx, "proj-1"); got != StateTesting {
		t.Errorf("CurrentState() = %q, want %q", got, StateTesting)
	}
}

func TestActiveSession(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	rec, err := tr.ActiveSession(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if rec != nil {
		t.Fatalf("ActiveSession() = %v, want nil before any session", rec)
	}

	first := tr.StartSession(ctx, "proj-1", "dev", "")
	second := tr.StartSession(ctx, "proj-1", "dev", "")

	rec, err = tr.ActiveSession(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if rec == nil || rec.SessionID != second {
		t.Errorf("ActiveSession() = %v, want the later session %s", rec, second)
	}

	if err := tr.EndSession(ctx, second, nil); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	rec, err = tr.ActiveSession(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if rec == nil || rec.SessionID != first {
		t.Errorf("ActiveSession() after end = %v, want %s", rec, first)
	}
}

func TestProjectSessions(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	first := tr.StartSession(ctx, "proj-1", "dev", "")
	second := tr.StartSession(ctx, "proj-1", "dev", "")
	tr.StartSession(ctx, "other", "dev", "")

	records, err := tr.ProjectSessions(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ProjectSessions() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d sessions, want 2", len(records))
	}
	if records[0].SessionID != second || records[1].SessionID != first {
		t.Errorf("sessions out of order: %s, %s", records[0].SessionID, records[1].SessionID)
	}
}

func TestReopenPreservesSessions(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	tr1, err := Open(root, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	id := tr1.StartSession(ctx, "proj-1", "dev", "long running work")
	tr1.Close()

	tr2, err := Open(root, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer tr2.Close()

	rec, err := tr2.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() after reopen error = %v", err)
	}
	if rec.SessionGoal != "long running work" {
		t.Errorf("SessionGoal = %q", rec.SessionGoal)
	}
}

func TestDiffStat(t *testing.T) {
	tests := []struct {
		name        string
		before      string
		after       string
		wantAdded   int
		wantRemoved int
	}{
		{"identical", "a\nb\n", "a\nb\n", 0, 0},
		{"append line", "a\n", "a\nb\n", 1, 0},
		{"change line", "a\nb\nc\n", "a\nx\nc\n", 1, 1},
		{"create file", "", "a\nb\nc", 3, 0},
		{"delete all", "x\ny\n", "", 0, 2},
		{"both empty", "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := diffStat(tt.before, tt.after)
			if added != tt.wantAdded || removed != tt.wantRemoved {
				t.Errorf("diffStat() = (%d, %d), want (%d, %d)", added, removed, tt.wantAdded, tt.wantRemoved)
			}
		})
	}
}
