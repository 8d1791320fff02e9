package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/errors"
	"leviatan/internal/session"
)

var (
	sessionFormat       string
	sessionUser         string
	sessionGoal         string
	sessionAchievements []string

	actionSession     string
	actionType        string
	actionDescription string
	actionFile        string
	actionSuccess     bool
	actionError       string
	actionDuration    int64
	actionData        string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Track work sessions against this project",
	Long: `Sessions group the developer action log. One session per project is
considered active at a time; starting a new one does not end the old.`,
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a work session",
	Run:   runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session, the active one by default",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSessionEnd,
}

var sessionLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Append an action to the session log",
	Run:   runSessionLog,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session",
	Run:   runSessionStatus,
}

var sessionContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Summarize recent activity and the derived context state",
	Run:   runSessionContext,
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionFormat, "format", "human", "Output format (json, human)")
	sessionCmd.PersistentFlags().StringVar(&sessionUser, "user", "local", "User the session belongs to")

	sessionStartCmd.Flags().StringVar(&sessionGoal, "goal", "", "What this session sets out to do")
	sessionEndCmd.Flags().StringSliceVar(&sessionAchievements, "achievements", nil, "What the session accomplished (repeatable)")

	sessionLogCmd.Flags().StringVar(&actionSession, "session", "", "Session id (defaults to the active session)")
	sessionLogCmd.Flags().StringVar(&actionType, "type", "", "Action type, e.g. FILE_EDIT or TEST_RUN")
	sessionLogCmd.Flags().StringVar(&actionDescription, "description", "", "What the action did")
	sessionLogCmd.Flags().StringVar(&actionFile, "file", "", "File the action touched")
	sessionLogCmd.Flags().BoolVar(&actionSuccess, "success", true, "Whether the action succeeded")
	sessionLogCmd.Flags().StringVar(&actionError, "error", "", "Error message for failed actions")
	sessionLogCmd.Flags().Int64Var(&actionDuration, "duration", 0, "Action duration in milliseconds")
	sessionLogCmd.Flags().StringVar(&actionData, "data", "", "Extra payload as a JSON object")
	sessionLogCmd.MarkFlagRequired("type")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionLogCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionContextCmd)
	rootCmd.AddCommand(sessionCmd)
}

// openTracker opens the session store or exits.
func openTracker(root string) *session.Tracker {
	tracker, err := session.Open(root, newCLILogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session store: %v\n", err)
		os.Exit(1)
	}
	return tracker
}

func runSessionStart(cmd *cobra.Command, args []string) {
	format := OutputFormat(sessionFormat)
	root := mustGetProjectRoot()
	ctx := newContext()

	tracker := openTracker(root)
	defer tracker.Close()

	id := tracker.StartSession(ctx, root, sessionUser, sessionGoal)
	tracker.LogAction(ctx, session.Action{
		SessionID:   id,
		ProjectID:   root,
		UserID:      sessionUser,
		Type:        session.ActionSessionStart,
		Description: "Session started",
		Success:     true,
	})

	rec, err := tracker.Session(ctx, id)
	if err != nil {
		exitWithError(err, format)
	}
	if rec == nil {
		// Persistence degraded; the id is still usable for logging.
		fmt.Printf("Session started: %s (untracked)\n", id)
		return
	}

	printResponse(convertSessionRecord(rec), format)
}

func runSessionEnd(cmd *cobra.Command, args []string) {
	format := OutputFormat(sessionFormat)
	root := mustGetProjectRoot()
	ctx := newContext()

	tracker := openTracker(root)
	defer tracker.Close()

	var rec *session.Record
	var err error
	if len(args) > 0 {
		rec, err = tracker.Session(ctx, args[0])
		if err == nil && rec == nil {
			err = errors.NewLeviError(errors.SessionNotFound,
				fmt.Sprintf("Session %q not found", args[0]), nil, nil, nil)
		}
	} else {
		rec, err = tracker.ActiveSession(ctx, root)
		if err == nil && rec == nil {
			err = errors.NewLeviError(errors.SessionNotFound,
				"No active session to end", nil, nil, nil)
		}
	}
	if err != nil {
		exitWithError(err, format)
	}

	tracker.LogAction(ctx, session.Action{
		SessionID:   rec.SessionID,
		ProjectID:   rec.ProjectID,
		UserID:      rec.UserID,
		Type:        session.ActionSessionEnd,
		Description: "Session ended",
		Success:     true,
	})
	if err := tracker.EndSession(ctx, rec.SessionID, sessionAchievements); err != nil {
		exitWithError(err, format)
	}

	ended, err := tracker.Session(ctx, rec.SessionID)
	if err != nil || ended == nil {
		fmt.Printf("Session ended: %s\n", rec.SessionID)
		return
	}
	printResponse(convertSessionRecord(ended), format)
}

func runSessionLog(cmd *cobra.Command, args []string) {
	format := OutputFormat(sessionFormat)
	root := mustGetProjectRoot()
	ctx := newContext()

	actType, err := session.ParseActionType(actionType)
	if err != nil {
		exitWithError(errors.NewInvalidParameterError("type", err.Error()), format)
	}

	var data map[string]interface{}
	if actionData != "" {
		if err := json.Unmarshal([]byte(actionData), &data); err != nil {
			exitWithError(errors.NewInvalidParameterError("data",
				"must be a JSON object: "+err.Error()), format)
		}
	}

	tracker := openTracker(root)
	defer tracker.Close()

	id := actionSession
	if id == "" {
		if rec, aerr := tracker.ActiveSession(ctx, root); aerr == nil && rec != nil {
			id = rec.SessionID
		}
	}

	tracker.LogAction(ctx, session.Action{
		SessionID:    id,
		ProjectID:    root,
		UserID:       sessionUser,
		Type:         actType,
		Description:  actionDescription,
		Data:         data,
		FilePath:     actionFile,
		Success:      actionSuccess,
		ErrorMessage: actionError,
		DurationMS:   actionDuration,
	})

	printResponse(&ActionLoggedCLI{Success: true, SessionID: id}, format)
}

func runSessionStatus(cmd *cobra.Command, args []string) {
	format := OutputFormat(sessionFormat)
	root := mustGetProjectRoot()
	ctx := newContext()

	tracker := openTracker(root)
	defer tracker.Close()

	rec, err := tracker.ActiveSession(ctx, root)
	if err != nil {
		exitWithError(err, format)
	}

	resp := &SessionStatusResponseCLI{Active: rec != nil}
	if rec != nil {
		resp.Session = convertSessionRecord(rec)
	}
	printResponse(resp, format)
}

func runSessionContext(cmd *cobra.Command, args []string) {
	format := OutputFormat(sessionFormat)
	root := mustGetProjectRoot()
	ctx := newContext()

	tracker := openTracker(root)
	defer tracker.Close()

	summary, err := tracker.AnalyzeProjectContext(ctx, root)
	if err != nil {
		exitWithError(err, format)
	}
	printResponse(convertContextResponse(summary), format)
}

// printResponse formats and prints a response, exiting on format errors.
func printResponse(resp interface{}, format OutputFormat) {
	output, err := FormatResponse(resp, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

// SessionRecordCLI is the CLI-facing view of one session
type SessionRecordCLI struct {
	SessionID    string   `json:"sessionId"`
	ProjectID    string   `json:"projectId"`
	UserID       string   `json:"userId"`
	Goal         string   `json:"goal,omitempty"`
	StartTime    string   `json:"startTime"`
	EndTime      *string  `json:"endTime,omitempty"`
	Active       bool     `json:"active"`
	TotalActions uint64   `json:"totalActions"`
	Achievements []string `json:"achievements,omitempty"`
}

// SessionStatusResponseCLI reports whether a session is active
type SessionStatusResponseCLI struct {
	Active  bool              `json:"active"`
	Session *SessionRecordCLI `json:"session,omitempty"`
}

// ActionLoggedCLI acknowledges a logged action
type ActionLoggedCLI struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
}

// ContextResponseCLI summarizes recent project activity
type ContextResponseCLI struct {
	ProjectID        string            `json:"projectId"`
	CurrentState     string            `json:"currentState"`
	RecommendedState string            `json:"recommendedState"`
	MostFrequent     string            `json:"mostFrequentAction,omitempty"`
	ActionCounts     map[string]uint64 `json:"actionCounts"`
	RecentActions    int               `json:"recentActions"`
	LastActivity     *string           `json:"lastActivity,omitempty"`
}

func convertSessionRecord(rec *session.Record) *SessionRecordCLI {
	resp := &SessionRecordCLI{
		SessionID:    rec.SessionID,
		ProjectID:    rec.ProjectID,
		UserID:       rec.UserID,
		Goal:         rec.SessionGoal,
		StartTime:    rec.StartTime.Format(time.RFC3339),
		Active:       rec.IsActive,
		TotalActions: rec.TotalActions,
		Achievements: rec.Achievements,
	}
	if rec.EndTime != nil {
		end := rec.EndTime.Format(time.RFC3339)
		resp.EndTime = &end
	}
	return resp
}

func convertContextResponse(sum *session.ContextSummary) *ContextResponseCLI {
	counts := make(map[string]uint64, len(sum.ActionCounts))
	for t, n := range sum.ActionCounts {
		counts[string(t)] = n
	}
	resp := &ContextResponseCLI{
		ProjectID:        sum.ProjectID,
		CurrentState:     string(sum.CurrentState),
		RecommendedState: string(sum.RecommendedState),
		MostFrequent:     string(sum.MostFrequent),
		ActionCounts:     counts,
		RecentActions:    sum.RecentActions,
	}
	if sum.LastActivity != nil {
		last := sum.LastActivity.Format(time.RFC3339)
		resp.LastActivity = &last
	}
	return resp
}
