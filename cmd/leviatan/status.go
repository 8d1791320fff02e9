package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/daemon"
	"leviatan/internal/insights"
	"leviatan/internal/paths"
	"leviatan/internal/session"
	"leviatan/internal/version"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace, snapshot, session and daemon state",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := mustGetProjectRoot()
	logger := newCLILogger()
	cfg := loadConfigOrDefault(root, logger)
	ctx := newContext()

	resp := &StatusResponseCLI{
		Version:     version.Info(),
		ProjectRoot: root,
	}
	if _, err := os.Stat(paths.ConfigPath(root)); err == nil {
		resp.Initialized = true
	}

	// Each probe degrades independently; status never fails outright.
	store := insights.NewStore(logger)
	if snap, err := store.Read(root); err != nil {
		logger.Warn("failed to read snapshot", "error", err)
	} else if snap != nil {
		maxAge := time.Duration(cfg.Analysis.FreshnessHours) * time.Hour
		resp.Snapshot = SnapshotStatusCLI{
			Present:      true,
			LastAnalyzed: snap.LastAnalyzed.Format(time.RFC3339),
			Fresh:        insights.IsFresh(snap, maxAge),
			TotalFiles:   snap.TotalFiles,
			ProjectType:  snap.ProjectType,
		}
	}

	if tracker, err := session.Open(root, logger); err != nil {
		logger.Warn("failed to open session store", "error", err)
	} else {
		if rec, aerr := tracker.ActiveSession(ctx, root); aerr != nil {
			logger.Warn("failed to read active session", "error", aerr)
		} else if rec != nil {
			resp.ActiveSession = &ActiveSessionCLI{
				SessionID:    rec.SessionID,
				Goal:         rec.SessionGoal,
				StartTime:    rec.StartTime.Format(time.RFC3339),
				TotalActions: rec.TotalActions,
			}
		}
		tracker.Close()
	}

	if running, pid, err := daemon.IsRunning(root); err != nil {
		logger.Warn("failed to check daemon", "error", err)
	} else if running {
		resp.Daemon = DaemonStatusCLI{
			Running: true,
			PID:     pid,
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		}
	}

	output, err := FormatResponse(resp, OutputFormat(statusFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)

	duration := time.Since(start).Milliseconds()
	if statusFormat == "human" {
		fmt.Printf("\n(Query took %dms)\n", duration)
	}
}

// StatusResponseCLI contains the complete workspace status for CLI output
type StatusResponseCLI struct {
	Version       string            `json:"version"`
	ProjectRoot   string            `json:"projectRoot"`
	Initialized   bool              `json:"initialized"`
	Snapshot      SnapshotStatusCLI `json:"snapshot"`
	ActiveSession *ActiveSessionCLI `json:"activeSession,omitempty"`
	Daemon        DaemonStatusCLI   `json:"daemon"`
}

// SnapshotStatusCLI describes the stored snapshot
type SnapshotStatusCLI struct {
	Present      bool   `json:"present"`
	LastAnalyzed string `json:"lastAnalyzed,omitempty"`
	Fresh        bool   `json:"fresh"`
	TotalFiles   uint64 `json:"totalFiles,omitempty"`
	ProjectType  string `json:"projectType,omitempty"`
}

// ActiveSessionCLI describes the active work session
type ActiveSessionCLI struct {
	SessionID    string `json:"sessionId"`
	Goal         string `json:"goal,omitempty"`
	StartTime    string `json:"startTime"`
	TotalActions uint64 `json:"totalActions"`
}

// DaemonStatusCLI describes daemon liveness
type DaemonStatusCLI struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Addr    string `json:"addr,omitempty"`
}
