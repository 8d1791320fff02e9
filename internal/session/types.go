// Package session tracks developer work sessions and the append-only
// action log behind them. The log is the source of truth: the per-project
// context state is an in-memory cell derived from it, recomputed from the
// log whenever a project is first touched after open, never persisted.
package session

import (
	"fmt"
	"time"
)

// ActionType identifies what kind of developer action an entry records.
type ActionType string

const (
	ActionFileEdit       ActionType = "FILE_EDIT"
	ActionFileCreate     ActionType = "FILE_CREATE"
	ActionFileDelete     ActionType = "FILE_DELETE"
	ActionCommandExecute ActionType = "COMMAND_EXECUTE"
	ActionTestRun        ActionType = "TEST_RUN"
	ActionDebugSession   ActionType = "DEBUG_SESSION"
	ActionBuildOperation ActionType = "BUILD_OPERATION"
	ActionGitOperation   ActionType = "GIT_OPERATION"
	ActionAIInteraction  ActionType = "AI_INTERACTION"
	ActionAgentExecution ActionType = "AGENT_EXECUTION"
	ActionSessionStart   ActionType = "SESSION_START"
	ActionSessionEnd     ActionType = "SESSION_END"
)

// ParseActionType validates a caller-supplied action type string.
func ParseActionType(s string) (ActionType, error) {
	switch t := ActionType(s); t {
	case ActionFileEdit, ActionFileCreate, ActionFileDelete,
		ActionCommandExecute, ActionTestRun, ActionDebugSession,
		ActionBuildOperation, ActionGitOperation, ActionAIInteraction,
		ActionAgentExecution, ActionSessionStart, ActionSessionEnd:
		return t, nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// ContextState is the coarse label for what the developer is doing in a
// project right now.
type ContextState string

const (
	StateIdle          ContextState = "IDLE"
	StateInitializing  ContextState = "INITIALIZING"
	StateCoding        ContextState = "CODING"
	StateTesting       ContextState = "TESTING"
	StateDebugging     ContextState = "DEBUGGING"
	StateBuilding      ContextState = "BUILDING"
	StateGitOperations ContextState = "GIT_OPERATIONS"
	StateAIAssisted    ContextState = "AI_ASSISTED"
)

// stateFor maps an action type to the context state it implies. The second
// return is false for action types that carry no state signal; those leave
// the current state untouched.
func stateFor(t ActionType) (ContextState, bool) {
	switch t {
	case ActionFileEdit, ActionFileCreate, ActionFileDelete:
		return StateCoding, true
	case ActionCommandExecute, ActionTestRun:
		return StateTesting, true
	case ActionDebugSession:
		return StateDebugging, true
	case ActionBuildOperation:
		return StateBuilding, true
	case ActionGitOperation:
		return StateGitOperations, true
	case ActionAIInteraction, ActionAgentExecution:
		return StateAIAssisted, true
	case ActionSessionStart:
		return StateInitializing, true
	default:
		return "", false
	}
}

// Record is one developer session against a project. At most one session
// per project is treated as active, last writer wins; nothing enforces
// exclusivity.
type Record struct {
	SessionID    string     `json:"sessionId"`
	ProjectID    string     `json:"projectId"`
	UserID       string     `json:"userId"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	SessionGoal  string     `json:"sessionGoal,omitempty"`
	TotalActions uint64     `json:"totalActions"`
	IsActive     bool       `json:"isActive"`
	Achievements []string   `json:"achievements"`
}

// Action is one append-only log entry. Immutable once written.
type Action struct {
	SessionID    string                 `json:"sessionId"`
	ProjectID    string                 `json:"projectId"`
	UserID       string                 `json:"userId"`
	Type         ActionType             `json:"actionType"`
	Description  string                 `json:"description"`
	Data         map[string]interface{} `json:"actionData,omitempty"`
	FilePath     string                 `json:"filePath,omitempty"`
	BeforeState  string                 `json:"beforeState,omitempty"`
	AfterState   string                 `json:"afterState,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	DurationMS   int64                  `json:"durationMs"`
	Timestamp    time.Time              `json:"timestamp"`
}

// recentWindow is how many trailing log entries context analysis looks at.
const recentWindow = 20

// ContextSummary aggregates the recent action log for a project.
// RecommendedState is advisory; CurrentState stays authoritative.
type ContextSummary struct {
	ProjectID        string                `json:"projectId"`
	CurrentState     ContextState          `json:"currentState"`
	RecommendedState ContextState          `json:"recommendedState"`
	ActionCounts     map[ActionType]uint64 `json:"actionCounts"`
	MostFrequent     ActionType            `json:"mostFrequentAction,omitempty"`
	LastActivity     *time.Time            `json:"lastActivity,omitempty"`
	RecentActions    int                   `json:"recentActions"`
}

// recommendState suggests a state from recent action counts, falling back
// to the current state when nothing in the window signals one. Priority is
// fixed: debugging beats testing beats git beats AI beats editing.
func recommendState(counts map[ActionType]uint64, current ContextState) ContextState {
	switch {
	case counts[ActionDebugSession] > 0:
		return StateDebugging
	case counts[ActionTestRun] > 0:
		return StateTesting
	case counts[ActionGitOperation] > 0:
		return StateGitOperations
	case counts[ActionAIInteraction] > 0 || counts[ActionAgentExecution] > 0:
		return StateAIAssisted
	case counts[ActionFileEdit] > 0 || counts[ActionFileCreate] > 0:
		return StateCoding
	default:
		return current
	}
}
