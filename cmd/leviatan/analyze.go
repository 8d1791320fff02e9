package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/analysis"
	"leviatan/internal/errors"
	"leviatan/internal/insights"
	"leviatan/internal/progress"
)

var (
	analyzeFormat string
	analyzeForce  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a project and write its insights snapshot",
	Long: `Runs the analysis strategy chain against the project, preferring a
registered remote analyzer and falling back to the local scanner, then
persists the winning result to the insightsproject.ia snapshot.

Without --force a fresh snapshot short-circuits the run.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "human", "Output format (json, human)")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Re-analyze even when the snapshot is fresh")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	start := time.Now()
	format := OutputFormat(analyzeFormat)

	pathArg := "."
	if len(args) > 0 {
		pathArg = args[0]
	}
	root, err := resolveProjectArg(args)
	if err != nil {
		exitWithError(errors.NewProjectNotFoundError(pathArg, err), format)
	}
	if info, serr := os.Stat(root); serr != nil || !info.IsDir() {
		exitWithError(errors.NewProjectNotFoundError(root, serr), format)
	}

	logger := newCLILogger()
	cfg := loadConfigOrDefault(root, logger)

	store := insights.NewStore(logger)
	pub := progress.NewPublisher(logger)
	coord := analysis.NewCoordinator(cfg, store, pub, logger)

	// Stream progress while the analysis runs. JSON mode stays quiet so
	// the output is a single parseable document.
	var (
		sub *progress.Subscription
		wg  sync.WaitGroup
	)
	if format == FormatHuman {
		fmt.Printf("Analyzing %s ...\n", root)
		sub = pub.Subscribe(root)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range sub.Events() {
				printProgress(ev)
			}
		}()
	}

	run := coord.Run
	if analyzeForce {
		run = coord.Refresh
	}
	snap, runErr := run(newContext(), root)

	if sub != nil {
		pub.Unsubscribe(sub)
		wg.Wait()
	}
	if runErr != nil {
		exitWithError(runErr, format)
	}

	output, err := FormatResponse(convertAnalyzeResponse(snap, time.Since(start)), format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func printProgress(ev progress.Event) {
	if ev.Message == "" {
		return
	}
	if ev.Completion > 0 && ev.Completion < 100 {
		fmt.Printf("  %s: %s (%.0f%%)\n", ev.Status, ev.Message, ev.Completion)
		return
	}
	fmt.Printf("  %s: %s\n", ev.Status, ev.Message)
}

// AnalyzeResponseCLI is the CLI-facing result of one analysis run
type AnalyzeResponseCLI struct {
	ProjectName      string   `json:"projectName"`
	ProjectPath      string   `json:"projectPath"`
	ProjectType      string   `json:"projectType,omitempty"`
	TotalFiles       uint64   `json:"totalFiles"`
	TotalLinesOfCode uint64   `json:"totalLinesOfCode"`
	PrimaryLanguages []string `json:"primaryLanguages"`
	Technologies     []string `json:"technologies"`
	Frameworks       []string `json:"frameworks"`
	QualityScore     *int     `json:"qualityScore,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Insights         []string `json:"insights,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	LastAnalyzed     string   `json:"lastAnalyzed"`
	DurationMs       int64    `json:"durationMs"`
}

func convertAnalyzeResponse(snap *insights.Snapshot, elapsed time.Duration) *AnalyzeResponseCLI {
	resp := &AnalyzeResponseCLI{
		ProjectName:      snap.ProjectName,
		ProjectPath:      snap.ProjectPath,
		ProjectType:      snap.ProjectType,
		TotalFiles:       snap.TotalFiles,
		TotalLinesOfCode: snap.TotalLinesOfCode,
		PrimaryLanguages: snap.PrimaryLanguages,
		Technologies:     snap.Technologies,
		Frameworks:       snap.Frameworks,
		Summary:          snap.AISummary,
		Insights:         snap.Insights,
		Recommendations:  snap.Recommendations,
		LastAnalyzed:     snap.LastAnalyzed.Format(time.RFC3339),
		DurationMs:       elapsed.Milliseconds(),
	}
	if snap.Quality != nil {
		score := snap.Quality.Score
		resp.QualityScore = &score
	}
	return resp
}
