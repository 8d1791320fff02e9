package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/api"
	"leviatan/internal/daemon"
	"leviatan/internal/paths"
	"leviatan/internal/scheduler"
	"leviatan/internal/slogutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Leviatan daemon",
	Long: `Starts the daemon for this project: an HTTP API on localhost, a file
watcher that queues re-analysis on changes, and scheduled maintenance.

By default the daemon detaches into the background and logs to
.leviatan/logs/serve.log. Use --foreground for debugging.`,
	RunE: runServeStart,
}

var (
	servePort       int
	serveHost       string
	serveForeground bool
	serveFormat     string
)

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runServeStop,
}

var serveRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	RunE:  runServeRestart,
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runServeStatus,
}

var serveScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect scheduled maintenance tasks",
}

var serveScheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	Long: `List the maintenance schedules for this project.

Examples:
  leviatan serve schedule list
  leviatan serve schedule list --enabled
  leviatan serve schedule list --type=freshness_sweep`,
	RunE: runScheduleList,
}

var (
	scheduleTaskType string
	scheduleEnabled  bool
	scheduleLimit    int
	scheduleFormat   string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveRestartCmd)
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveScheduleCmd)
	serveScheduleCmd.AddCommand(serveScheduleListCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 5001, "HTTP port")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Bind address")
	serveCmd.Flags().BoolVar(&serveForeground, "foreground", false, "Run in foreground")

	serveStatusCmd.Flags().StringVar(&serveFormat, "format", "human", "Output format (json, human)")

	serveScheduleListCmd.Flags().StringVar(&scheduleTaskType, "type", "", "Filter by task type (freshness_sweep, jobs_cleanup)")
	serveScheduleListCmd.Flags().BoolVar(&scheduleEnabled, "enabled", false, "Show only enabled schedules")
	serveScheduleListCmd.Flags().IntVar(&scheduleLimit, "limit", 20, "Maximum schedules to return")
	serveScheduleListCmd.Flags().StringVar(&scheduleFormat, "format", "human", "Output format (json, human)")
}

func runServeStart(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Printf("Daemon is already running (PID: %d)\n", pid)
		return nil
	}

	if serveForeground {
		return runServeForeground(cmd, root)
	}
	return runServeBackground(cmd, root)
}

func runServeForeground(cmd *cobra.Command, root string) error {
	cfg := loadConfigOrDefault(root, newCLILogger())
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	factory := slogutil.NewLoggerFactory(root, cfg, cliFactoryLevel())
	defer factory.Close()
	logger, err := factory.ServeLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: serve log unavailable: %v\n", err)
	}

	d, err := daemon.New(root, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("Serving on http://%s:%d (press Ctrl-C to stop)\n", cfg.Server.Host, cfg.Server.Port)
	d.Wait()
	return d.Stop()
}

func runServeBackground(cmd *cobra.Command, root string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	childArgs := []string{"serve", "--foreground"}
	if cmd.Flags().Changed("port") {
		childArgs = append(childArgs, fmt.Sprintf("--port=%d", servePort))
	}
	if cmd.Flags().Changed("host") {
		childArgs = append(childArgs, fmt.Sprintf("--host=%s", serveHost))
	}

	child := exec.Command(executable, childArgs...)
	child.Dir = root
	setServeSysProcAttr(child)

	if err := os.MkdirAll(paths.LogsDir(root), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(paths.LogsDir(root), "serve.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	child.Stdout = logFile
	child.Stderr = logFile

	if err := child.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFile.Close()

	cfg := loadConfigOrDefault(root, slogutil.NewDiscardLogger())
	host, port := cfg.Server.Host, cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}
	if cmd.Flags().Changed("host") {
		host = serveHost
	}

	fmt.Printf("Daemon started (PID: %d)\n", child.Process.Pid)
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Log file: %s\n", logPath)
	return nil
}

func runServeStop(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := daemon.StopRemote(root); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Println("Daemon stopped")
	return nil
}

func runServeRestart(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	running, _, _ := daemon.IsRunning(root)
	if running {
		if err := runServeStop(cmd, args); err != nil {
			return err
		}
	}
	return runServeStart(cmd, args)
}

func runServeStatus(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	running, pid, err := daemon.IsRunning(root)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	resp := &ServeStatusResponseCLI{Running: running, PID: pid}
	if running {
		cfg := loadConfigOrDefault(root, newCLILogger())
		resp.Addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if status := fetchDaemonStatus(resp.Addr); status != nil {
			resp.Reachable = true
			resp.Version = status.Version
			resp.Uptime = status.Uptime
			resp.Schedules = status.Schedules
		}
	}

	output, err := FormatResponse(resp, OutputFormat(serveFormat))
	if err != nil {
		return fmt.Errorf("error formatting output: %w", err)
	}
	fmt.Println(output)
	return nil
}

// fetchDaemonStatus queries the running daemon's status endpoint. A nil
// return means the API did not answer; the caller reports unreachable.
func fetchDaemonStatus(addr string) *api.StatusResponse {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/v1/status")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil
	}
	return &status
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	root := mustGetProjectRoot()

	sched, err := scheduler.New(root, slogutil.NewDiscardLogger(), scheduler.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to access scheduler: %w", err)
	}
	defer sched.Stop(time.Second)

	opts := scheduler.ListSchedulesOptions{
		Limit: scheduleLimit,
	}
	if scheduleTaskType != "" {
		opts.TaskType = []scheduler.TaskType{scheduler.TaskType(scheduleTaskType)}
	}
	if cmd.Flags().Changed("enabled") {
		opts.Enabled = &scheduleEnabled
	}

	result, err := sched.ListSchedules(opts)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	output, err := FormatResponse(result, OutputFormat(scheduleFormat))
	if err != nil {
		return fmt.Errorf("error formatting output: %w", err)
	}
	fmt.Println(output)
	return nil
}

// ServeStatusResponseCLI describes daemon liveness for CLI output
type ServeStatusResponseCLI struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	Addr      string `json:"addr,omitempty"`
	Reachable bool   `json:"reachable"`
	Version   string `json:"version,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	Schedules int    `json:"schedules,omitempty"`
}
