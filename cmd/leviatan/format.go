package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"leviatan/internal/errors"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *errors.LeviError:
		return formatErrorHuman(v)
	case *AnalyzeResponseCLI:
		return formatAnalyzeHuman(v)
	case *InsightsResponseCLI:
		return formatInsightsHuman(v)
	case *SessionRecordCLI:
		return formatSessionHuman(v)
	case *SessionStatusResponseCLI:
		return formatSessionStatusHuman(v)
	case *ContextResponseCLI:
		return formatContextHuman(v)
	case *StatusResponseCLI:
		return formatStatusHuman(v)
	case *ServeStatusResponseCLI:
		return formatServeStatusHuman(v)
	case *JobsListResponseCLI:
		return formatJobsListHuman(v)
	case *JobResponseCLI:
		return formatJobHuman(v)
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

// formatErrorHuman formats a LeviError in human-readable format
func formatErrorHuman(e *errors.LeviError) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ [%s] %s\n", e.Code, e.Message))
	if e.Details != nil {
		b.WriteString(fmt.Sprintf("  %v\n", e.Details))
	}

	if len(e.SuggestedFixes) > 0 {
		b.WriteString("\nSuggested fixes:\n")
		for _, fix := range e.SuggestedFixes {
			b.WriteString(fmt.Sprintf("  - %s\n", fix.Description))
			if fix.Command != "" {
				b.WriteString(fmt.Sprintf("    $ %s\n", fix.Command))
			}
			if fix.URL != "" {
				b.WriteString(fmt.Sprintf("    %s\n", fix.URL))
			}
		}
	}

	if len(e.Drilldowns) > 0 {
		b.WriteString("\nSuggested follow-ups:\n")
		for i, d := range e.Drilldowns {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, d.Label))
			b.WriteString(fmt.Sprintf("     $ leviatan %s\n", d.Query))
		}
	}

	return b.String(), nil
}

// formatAnalyzeHuman formats an AnalyzeResponseCLI in human-readable format
func formatAnalyzeHuman(resp *AnalyzeResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Analysis Complete: %s\n", resp.ProjectName))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Path: %s\n", resp.ProjectPath))
	if resp.ProjectType != "" {
		b.WriteString(fmt.Sprintf("Type: %s\n", resp.ProjectType))
	}
	b.WriteString(fmt.Sprintf("Files: %d (%d lines of code)\n", resp.TotalFiles, resp.TotalLinesOfCode))

	if len(resp.PrimaryLanguages) > 0 {
		b.WriteString(fmt.Sprintf("Languages: %s\n", strings.Join(resp.PrimaryLanguages, ", ")))
	}
	if len(resp.Technologies) > 0 {
		b.WriteString(fmt.Sprintf("Technologies: %s\n", strings.Join(resp.Technologies, ", ")))
	}
	if len(resp.Frameworks) > 0 {
		b.WriteString(fmt.Sprintf("Frameworks: %s\n", strings.Join(resp.Frameworks, ", ")))
	}
	if resp.QualityScore != nil {
		b.WriteString(fmt.Sprintf("Quality Score: %d/10\n", *resp.QualityScore))
	}

	if resp.Summary != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", resp.Summary))
	}

	if len(resp.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, insight := range resp.Insights {
			b.WriteString(fmt.Sprintf("  - %s\n", insight))
		}
	}

	if len(resp.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range resp.Recommendations {
			b.WriteString(fmt.Sprintf("  - %s\n", rec))
		}
	}

	b.WriteString(fmt.Sprintf("\n(Analysis took %dms)\n", resp.DurationMs))

	return b.String(), nil
}

// formatInsightsHuman formats an InsightsResponseCLI in human-readable format
func formatInsightsHuman(resp *InsightsResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Project Insights: %s\n", resp.ProjectName))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	freshIcon := "✓"
	freshText := "fresh"
	if !resp.Fresh {
		freshIcon = "✗"
		freshText = "stale, run 'leviatan analyze' to refresh"
	}
	b.WriteString(fmt.Sprintf("%s Last analyzed: %s (%s)\n\n", freshIcon, resp.LastAnalyzed, freshText))

	b.WriteString(fmt.Sprintf("Path: %s\n", resp.ProjectPath))
	if resp.ProjectType != "" {
		b.WriteString(fmt.Sprintf("Type: %s\n", resp.ProjectType))
	}
	b.WriteString(fmt.Sprintf("Files: %d (%d lines of code)\n", resp.TotalFiles, resp.TotalLinesOfCode))

	if len(resp.PrimaryLanguages) > 0 {
		b.WriteString(fmt.Sprintf("Languages: %s\n", strings.Join(resp.PrimaryLanguages, ", ")))
	}
	if len(resp.Technologies) > 0 {
		b.WriteString(fmt.Sprintf("Technologies: %s\n", strings.Join(resp.Technologies, ", ")))
	}
	if len(resp.Frameworks) > 0 {
		b.WriteString(fmt.Sprintf("Frameworks: %s\n", strings.Join(resp.Frameworks, ", ")))
	}
	if resp.GitBranch != "" {
		b.WriteString(fmt.Sprintf("Branch: %s\n", resp.GitBranch))
	}
	if resp.QualityScore != nil {
		b.WriteString(fmt.Sprintf("Quality Score: %d/10\n", *resp.QualityScore))
	}

	if resp.Summary != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", resp.Summary))
	}

	if len(resp.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, insight := range resp.Insights {
			b.WriteString(fmt.Sprintf("  - %s\n", insight))
		}
	}

	if len(resp.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range resp.Recommendations {
			b.WriteString(fmt.Sprintf("  - %s\n", rec))
		}
	}

	if len(resp.SetupInstructions) > 0 {
		b.WriteString("\nSetup:\n")
		for _, step := range resp.SetupInstructions {
			b.WriteString(fmt.Sprintf("  $ %s\n", step))
		}
	}

	if len(resp.RunCommands) > 0 {
		b.WriteString("\nRun:\n")
		for _, cmd := range resp.RunCommands {
			b.WriteString(fmt.Sprintf("  $ %s\n", cmd))
		}
	}

	if len(resp.MainEntryPoints) > 0 {
		b.WriteString("\nEntry Points:\n")
		for _, ep := range resp.MainEntryPoints {
			b.WriteString(fmt.Sprintf("  - %s\n", ep))
		}
	}

	if resp.UserNotes != "" {
		b.WriteString(fmt.Sprintf("\nNotes: %s\n", resp.UserNotes))
	}

	return b.String(), nil
}

// formatSessionHuman formats a SessionRecordCLI in human-readable format
func formatSessionHuman(resp *SessionRecordCLI) (string, error) {
	var b strings.Builder

	stateIcon := "✓"
	stateText := "active"
	if !resp.Active {
		stateIcon = "·"
		stateText = "ended"
	}
	b.WriteString(fmt.Sprintf("%s Session %s (%s)\n", stateIcon, resp.SessionID, stateText))

	b.WriteString(fmt.Sprintf("  User: %s\n", resp.UserID))
	if resp.Goal != "" {
		b.WriteString(fmt.Sprintf("  Goal: %s\n", resp.Goal))
	}
	b.WriteString(fmt.Sprintf("  Started: %s\n", resp.StartTime))
	if resp.EndTime != nil {
		b.WriteString(fmt.Sprintf("  Ended: %s\n", *resp.EndTime))
	}
	b.WriteString(fmt.Sprintf("  Actions: %d\n", resp.TotalActions))

	if len(resp.Achievements) > 0 {
		b.WriteString("  Achievements:\n")
		for _, a := range resp.Achievements {
			b.WriteString(fmt.Sprintf("    - %s\n", a))
		}
	}

	return b.String(), nil
}

// formatSessionStatusHuman formats a SessionStatusResponseCLI in human-readable format
func formatSessionStatusHuman(resp *SessionStatusResponseCLI) (string, error) {
	if !resp.Active || resp.Session == nil {
		return "No active session. Start one with 'leviatan session start'.\n", nil
	}
	return formatSessionHuman(resp.Session)
}

// formatContextHuman formats a ContextResponseCLI in human-readable format
func formatContextHuman(resp *ContextResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString("Project Context\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Current State: %s\n", resp.CurrentState))
	if resp.RecommendedState != "" && resp.RecommendedState != resp.CurrentState {
		b.WriteString(fmt.Sprintf("Recommended State: %s\n", resp.RecommendedState))
	}
	if resp.LastActivity != nil {
		b.WriteString(fmt.Sprintf("Last Activity: %s\n", *resp.LastActivity))
	}
	b.WriteString(fmt.Sprintf("Recent Actions: %d\n", resp.RecentActions))
	if resp.MostFrequent != "" {
		b.WriteString(fmt.Sprintf("Most Frequent: %s\n", resp.MostFrequent))
	}

	if len(resp.ActionCounts) > 0 {
		b.WriteString("\nAction Counts:\n")
		for _, t := range sortedKeys(resp.ActionCounts) {
			b.WriteString(fmt.Sprintf("  %s: %d\n", t, resp.ActionCounts[t]))
		}
	}

	return b.String(), nil
}

// formatStatusHuman formats a StatusResponseCLI in human-readable format
func formatStatusHuman(resp *StatusResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Leviatan Status - v%s\n", resp.Version))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Project: %s\n", resp.ProjectRoot))

	initIcon := "✓"
	initText := "initialized"
	if !resp.Initialized {
		initIcon = "✗"
		initText = "not initialized, run 'leviatan init'"
	}
	b.WriteString(fmt.Sprintf("%s Workspace: %s\n\n", initIcon, initText))

	b.WriteString("Snapshot:\n")
	if resp.Snapshot.Present {
		freshText := "fresh"
		if !resp.Snapshot.Fresh {
			freshText = "stale"
		}
		b.WriteString(fmt.Sprintf("  Last Analyzed: %s (%s)\n", resp.Snapshot.LastAnalyzed, freshText))
		b.WriteString(fmt.Sprintf("  Files: %d\n", resp.Snapshot.TotalFiles))
		if resp.Snapshot.ProjectType != "" {
			b.WriteString(fmt.Sprintf("  Type: %s\n", resp.Snapshot.ProjectType))
		}
	} else {
		b.WriteString("  None. Run 'leviatan analyze' to create one.\n")
	}
	b.WriteString("\n")

	b.WriteString("Session:\n")
	if resp.ActiveSession != nil {
		b.WriteString(fmt.Sprintf("  Active: %s\n", resp.ActiveSession.SessionID))
		if resp.ActiveSession.Goal != "" {
			b.WriteString(fmt.Sprintf("  Goal: %s\n", resp.ActiveSession.Goal))
		}
		b.WriteString(fmt.Sprintf("  Started: %s\n", resp.ActiveSession.StartTime))
		b.WriteString(fmt.Sprintf("  Actions: %d\n", resp.ActiveSession.TotalActions))
	} else {
		b.WriteString("  No active session.\n")
	}
	b.WriteString("\n")

	b.WriteString("Daemon:\n")
	if resp.Daemon.Running {
		b.WriteString(fmt.Sprintf("  ✓ Running (PID: %d)\n", resp.Daemon.PID))
		if resp.Daemon.Addr != "" {
			b.WriteString(fmt.Sprintf("  Address: http://%s\n", resp.Daemon.Addr))
		}
	} else {
		b.WriteString("  Not running. Start with 'leviatan serve'.\n")
	}

	return b.String(), nil
}

// formatServeStatusHuman formats a ServeStatusResponseCLI in human-readable format
func formatServeStatusHuman(resp *ServeStatusResponseCLI) (string, error) {
	var b strings.Builder

	if !resp.Running {
		b.WriteString("✗ Daemon is not running. Start with 'leviatan serve'.\n")
		return b.String(), nil
	}

	b.WriteString(fmt.Sprintf("✓ Daemon running (PID: %d)\n", resp.PID))
	if resp.Addr != "" {
		b.WriteString(fmt.Sprintf("  Address: http://%s\n", resp.Addr))
	}
	if resp.Reachable {
		if resp.Version != "" {
			b.WriteString(fmt.Sprintf("  Version: %s\n", resp.Version))
		}
		if resp.Uptime != "" {
			b.WriteString(fmt.Sprintf("  Uptime: %s\n", resp.Uptime))
		}
		b.WriteString(fmt.Sprintf("  Schedules: %d\n", resp.Schedules))
	} else {
		b.WriteString("  ✗ API not reachable\n")
	}

	return b.String(), nil
}

// formatJobsListHuman formats a JobsListResponseCLI in human-readable format
func formatJobsListHuman(resp *JobsListResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Jobs (%d total)\n", resp.TotalCount))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if len(resp.Jobs) == 0 {
		b.WriteString("No jobs recorded.\n")
		return b.String(), nil
	}

	for _, job := range resp.Jobs {
		icon := jobStatusIcon(job.Status)
		b.WriteString(fmt.Sprintf("%s %s  %s (%s)\n", icon, job.ID, job.Type, job.Status))
		b.WriteString(fmt.Sprintf("   Created: %s", job.CreatedAt))
		if job.CompletedAt != nil {
			b.WriteString(fmt.Sprintf("  Completed: %s", *job.CompletedAt))
		}
		b.WriteString("\n")
		if job.Status == "running" {
			b.WriteString(fmt.Sprintf("   Progress: %d%%\n", job.Progress))
		}
		if job.Error != "" {
			b.WriteString(fmt.Sprintf("   Error: %s\n", job.Error))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// formatJobHuman formats a JobResponseCLI in human-readable format
func formatJobHuman(resp *JobResponseCLI) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s Job %s\n", jobStatusIcon(resp.Status), resp.ID))
	b.WriteString(fmt.Sprintf("  Type: %s\n", resp.Type))
	b.WriteString(fmt.Sprintf("  Status: %s (%d%%)\n", resp.Status, resp.Progress))
	if resp.Scope != "" {
		b.WriteString(fmt.Sprintf("  Scope: %s\n", resp.Scope))
	}
	b.WriteString(fmt.Sprintf("  Created: %s\n", resp.CreatedAt))
	if resp.StartedAt != nil {
		b.WriteString(fmt.Sprintf("  Started: %s\n", *resp.StartedAt))
	}
	if resp.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("  Completed: %s\n", *resp.CompletedAt))
	}
	if resp.Error != "" {
		b.WriteString(fmt.Sprintf("  Error: %s\n", resp.Error))
	}
	if resp.Result != "" {
		b.WriteString(fmt.Sprintf("  Result: %s\n", resp.Result))
	}

	return b.String(), nil
}

func jobStatusIcon(status string) string {
	switch status {
	case "completed":
		return "✓"
	case "failed":
		return "✗"
	case "running":
		return "▸"
	case "cancelled":
		return "·"
	default:
		return "…"
	}
}

// sortedKeys returns map keys in lexical order for stable human output.
func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte size in human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
