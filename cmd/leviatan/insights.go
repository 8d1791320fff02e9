package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"leviatan/internal/config"
	"leviatan/internal/errors"
	"leviatan/internal/insights"
)

var (
	insightsFormat string
	insightsOutput string
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show the stored insights snapshot",
	Long: `Reads the insightsproject.ia snapshot written by 'leviatan analyze'
and prints it. The snapshot is read as-is; a stale one is flagged but
never refreshed implicitly.`,
	Run: runInsights,
}

var insightsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the snapshot as gzipped JSON",
	Run:   runInsightsExport,
}

var insightsNotesCmd = &cobra.Command{
	Use:   "notes <text>",
	Short: "Attach free-form notes to the snapshot",
	Long: `Stores user notes on the snapshot. Notes survive re-analysis; only
this command overwrites them.`,
	Args: cobra.ExactArgs(1),
	Run:  runInsightsNotes,
}

func init() {
	insightsCmd.Flags().StringVar(&insightsFormat, "format", "human", "Output format (json, human)")
	insightsExportCmd.Flags().StringVarP(&insightsOutput, "output", "o", "", "Write to file instead of stdout")
	insightsCmd.AddCommand(insightsExportCmd)
	insightsCmd.AddCommand(insightsNotesCmd)
	rootCmd.AddCommand(insightsCmd)
}

func snapshotMissingError(root string) *errors.LeviError {
	return errors.NewLeviError(errors.SnapshotMissing,
		fmt.Sprintf("No analysis snapshot exists for %q", root),
		nil, errors.GetSuggestedFixes(errors.SnapshotMissing), nil)
}

func runInsights(cmd *cobra.Command, args []string) {
	format := OutputFormat(insightsFormat)
	root := mustGetProjectRoot()
	logger := newCLILogger()
	cfg := loadConfigOrDefault(root, logger)

	store := insights.NewStore(logger)
	snap, err := store.Read(root)
	if err != nil {
		exitWithError(err, format)
	}
	if snap == nil {
		exitWithError(snapshotMissingError(root), format)
	}

	output, err := FormatResponse(convertInsightsResponse(snap, cfg), format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func runInsightsExport(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	store := insights.NewStore(newCLILogger())

	if insightsOutput == "" {
		if err := store.Export(root, os.Stdout); err != nil {
			exitWithError(err, FormatHuman)
		}
		return
	}

	f, err := os.Create(insightsOutput)
	if err != nil {
		exitWithError(errors.NewLeviError(errors.IOError,
			fmt.Sprintf("Failed to create export file %q", insightsOutput),
			err, nil, nil), FormatHuman)
	}
	if err := store.Export(root, f); err != nil {
		f.Close()
		os.Remove(insightsOutput)
		exitWithError(err, FormatHuman)
	}
	if err := f.Close(); err != nil {
		exitWithError(errors.NewLeviError(errors.IOError,
			fmt.Sprintf("Failed to finish export file %q", insightsOutput),
			err, nil, nil), FormatHuman)
	}

	if info, serr := os.Stat(insightsOutput); serr == nil {
		fmt.Printf("Exported snapshot to %s (%s)\n", insightsOutput, formatBytes(info.Size()))
	} else {
		fmt.Printf("Exported snapshot to %s\n", insightsOutput)
	}
}

func runInsightsNotes(cmd *cobra.Command, args []string) {
	root := mustGetProjectRoot()
	store := insights.NewStore(newCLILogger())

	if _, err := store.UpdateNotes(root, args[0]); err != nil {
		exitWithError(err, FormatHuman)
	}
	fmt.Println("Notes updated.")
}

// InsightsResponseCLI is the CLI-facing view of the stored snapshot
type InsightsResponseCLI struct {
	ProjectName       string   `json:"projectName"`
	ProjectPath       string   `json:"projectPath"`
	ProjectType       string   `json:"projectType,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	LastAnalyzed      string   `json:"lastAnalyzed"`
	Fresh             bool     `json:"fresh"`
	TotalFiles        uint64   `json:"totalFiles"`
	TotalLinesOfCode  uint64   `json:"totalLinesOfCode"`
	PrimaryLanguages  []string `json:"primaryLanguages"`
	Technologies      []string `json:"technologies"`
	Frameworks        []string `json:"frameworks"`
	Summary           string   `json:"summary,omitempty"`
	Insights          []string `json:"insights,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
	SetupInstructions []string `json:"setupInstructions,omitempty"`
	RunCommands       []string `json:"runCommands,omitempty"`
	MainEntryPoints   []string `json:"mainEntryPoints,omitempty"`
	QualityScore      *int     `json:"qualityScore,omitempty"`
	GitBranch         string   `json:"gitBranch,omitempty"`
	UserNotes         string   `json:"userNotes,omitempty"`
}

func convertInsightsResponse(snap *insights.Snapshot, cfg *config.Config) *InsightsResponseCLI {
	maxAge := time.Duration(cfg.Analysis.FreshnessHours) * time.Hour
	resp := &InsightsResponseCLI{
		ProjectName:       snap.ProjectName,
		ProjectPath:       snap.ProjectPath,
		ProjectType:       snap.ProjectType,
		CreatedAt:         snap.CreatedAt.Format(time.RFC3339),
		LastAnalyzed:      snap.LastAnalyzed.Format(time.RFC3339),
		Fresh:             insights.IsFresh(snap, maxAge),
		TotalFiles:        snap.TotalFiles,
		TotalLinesOfCode:  snap.TotalLinesOfCode,
		PrimaryLanguages:  snap.PrimaryLanguages,
		Technologies:      snap.Technologies,
		Frameworks:        snap.Frameworks,
		Summary:           snap.AISummary,
		Insights:          snap.Insights,
		Recommendations:   snap.Recommendations,
		SetupInstructions: snap.SetupInstructions,
		RunCommands:       snap.RunCommands,
		MainEntryPoints:   snap.MainEntryPoints,
		GitBranch:         snap.GitInfo.Branch,
		UserNotes:         snap.UserNotes,
	}
	if snap.Quality != nil {
		score := snap.Quality.Score
		resp.QualityScore = &score
	}
	return resp
}
