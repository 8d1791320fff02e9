package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/api"
	"leviatan/internal/daemon"
	"leviatan/internal/jobs"
)

var (
	jobsFormat string
	jobsLimit  int
	jobsStatus string
	jobsType   string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage background jobs",
	Long: `List, check status, and manage background jobs.

The daemon queues analysis runs, deep analysis retrievals and snapshot
exports as jobs. List and status read the job database directly; cancel
needs a running daemon.

Examples:
  leviatan jobs list
  leviatan jobs status <job-id>
  leviatan jobs cancel <job-id>`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent background jobs",
	Long: `List recent background jobs with optional filtering.

Examples:
  leviatan jobs list
  leviatan jobs list --status=running
  leviatan jobs list --type=full_analysis
  leviatan jobs list --limit=50`,
	Run: runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Get status of a specific job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsCancel,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to return")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVar(&jobsType, "type", "", "Filter by type (full_analysis, deep_analysis, export_snapshot)")

	jobsStatusCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")

	jobsCancelCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}

// openJobStore opens the job database or exits.
func openJobStore(root string) *jobs.Store {
	store, err := jobs.OpenStore(root, newCLILogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening job store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runJobsList(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	store := openJobStore(root)
	defer store.Close()

	opts := jobs.ListJobsOptions{
		Limit: jobsLimit,
	}
	if jobsStatus != "" {
		opts.Status = []jobs.JobStatus{jobs.JobStatus(jobsStatus)}
	}
	if jobsType != "" {
		opts.Type = []jobs.JobType{jobs.JobType(jobsType)}
	}

	response, err := store.ListJobs(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing jobs: %v\n", err)
		os.Exit(1)
	}

	cliResponse := convertJobsListResponse(response)

	output, err := FormatResponse(cliResponse, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

func runJobsStatus(cmd *cobra.Command, args []string) {
	jobID := args[0]
	root := mustGetProjectRoot()
	store := openJobStore(root)
	defer store.Close()

	job, err := store.GetJob(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting job status: %v\n", err)
		os.Exit(1)
	}
	if job == nil {
		fmt.Fprintf(os.Stderr, "Error: job %s not found\n", jobID)
		os.Exit(1)
	}

	cliResponse := convertJobResponse(job)

	output, err := FormatResponse(cliResponse, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

func runJobsCancel(cmd *cobra.Command, args []string) {
	jobID := args[0]
	root := mustGetProjectRoot()

	// The runner owns in-flight jobs, so cancellation goes through the
	// daemon API rather than the database.
	running, _, err := daemon.IsRunning(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking daemon: %v\n", err)
		os.Exit(1)
	}
	if !running {
		fmt.Fprintln(os.Stderr, "Error: daemon is not running; cancellation needs 'leviatan serve'")
		os.Exit(1)
	}

	cfg := loadConfigOrDefault(root, newCLILogger())
	url := fmt.Sprintf("http://%s:%d/api/v1/jobs/%s/cancel", cfg.Server.Host, cfg.Server.Port, jobID)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error cancelling job: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope api.ErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&envelope); derr == nil && envelope.Error != "" {
			fmt.Fprintf(os.Stderr, "Error cancelling job: %s\n", envelope.Error)
		} else {
			fmt.Fprintf(os.Stderr, "Error cancelling job: daemon returned %s\n", resp.Status)
		}
		os.Exit(1)
	}

	cliResponse := &JobCancelResponseCLI{
		JobId:     jobID,
		Cancelled: true,
		Message:   "Job cancellation requested",
	}

	output, err := FormatResponse(cliResponse, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

// JobsListResponseCLI contains jobs list for CLI output
type JobsListResponseCLI struct {
	Jobs       []JobSummaryCLI `json:"jobs"`
	TotalCount int             `json:"totalCount"`
}

type JobSummaryCLI struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	CreatedAt   string  `json:"createdAt"`
	CompletedAt *string `json:"completedAt,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// JobResponseCLI contains full job details for CLI output
type JobResponseCLI struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Scope       string  `json:"scope,omitempty"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	CreatedAt   string  `json:"createdAt"`
	StartedAt   *string `json:"startedAt,omitempty"`
	CompletedAt *string `json:"completedAt,omitempty"`
	Error       string  `json:"error,omitempty"`
	Result      string  `json:"result,omitempty"`
}

// JobCancelResponseCLI contains cancel result for CLI output
type JobCancelResponseCLI struct {
	JobId     string `json:"jobId"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

func convertJobsListResponse(resp *jobs.ListJobsResponse) *JobsListResponseCLI {
	jobsList := make([]JobSummaryCLI, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		job := JobSummaryCLI{
			ID:        j.ID,
			Type:      string(j.Type),
			Status:    string(j.Status),
			Progress:  j.Progress,
			CreatedAt: j.CreatedAt.Format(time.RFC3339),
			Error:     j.Error,
		}
		if j.CompletedAt != nil {
			s := j.CompletedAt.Format(time.RFC3339)
			job.CompletedAt = &s
		}
		jobsList = append(jobsList, job)
	}

	return &JobsListResponseCLI{
		Jobs:       jobsList,
		TotalCount: resp.TotalCount,
	}
}

func convertJobResponse(job *jobs.Job) *JobResponseCLI {
	result := &JobResponseCLI{
		ID:        job.ID,
		Type:      string(job.Type),
		Scope:     truncateString(job.Scope, 200),
		Status:    string(job.Status),
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		Error:     job.Error,
		Result:    truncateString(job.Result, 500),
	}

	if job.StartedAt != nil {
		s := job.StartedAt.Format(time.RFC3339)
		result.StartedAt = &s
	}
	if job.CompletedAt != nil {
		s := job.CompletedAt.Format(time.RFC3339)
		result.CompletedAt = &s
	}

	return result
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen]) + "..."
}
