package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"leviatan/internal/gitmeta"
	"leviatan/internal/insights"
)

// TextCompletionProvider produces free-form text from a prompt. When one
// is configured the coordinator uses it for snapshot summaries; analysis
// never depends on it and falls back to a deterministic template.
type TextCompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// buildNarrative fills the reader-facing snapshot fields the walk itself
// cannot produce. Fields already populated, by a remote analyzer or by
// hot-spot detection, are left alone.
func (c *Coordinator) buildNarrative(ctx context.Context, root string, snap *insights.Snapshot) {
	if snap.AISummary == "" && c.provider != nil {
		text, err := c.provider.Complete(ctx, summaryPrompt(snap))
		if err != nil {
			c.logger.Warn("text completion failed, using template summary", "error", err)
		} else if t := strings.TrimSpace(text); t != "" {
			snap.AISummary = t
		}
	}
	if snap.AISummary == "" {
		snap.AISummary = templateSummary(root, snap)
	}
	if len(snap.Insights) == 0 {
		snap.Insights = defaultInsights(snap)
	}
	if len(snap.Recommendations) == 0 {
		snap.Recommendations = recommendationsFor(root, snap)
	}
}

func summaryPrompt(snap *insights.Snapshot) string {
	var b strings.Builder
	b.WriteString("Analyze this software project and provide a brief summary of its purpose and architecture. Keep it concise and actionable.\n\n")
	fmt.Fprintf(&b, "Project: %s\n", filepath.Base(snap.ProjectPath))
	if len(snap.PrimaryLanguages) > 0 {
		fmt.Fprintf(&b, "Primary languages: %s\n", strings.Join(snap.PrimaryLanguages, ", "))
	}
	if len(snap.Technologies) > 0 {
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(snap.Technologies, ", "))
	}
	if len(snap.Frameworks) > 0 {
		fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(snap.Frameworks, ", "))
	}
	if snap.ProjectType != "" {
		fmt.Fprintf(&b, "Project type: %s\n", snap.ProjectType)
	}
	fmt.Fprintf(&b, "Files: %d, lines of code: %d\n", snap.TotalFiles, snap.TotalLinesOfCode)
	return b.String()
}

func templateSummary(root string, snap *insights.Snapshot) string {
	name := snap.ProjectName
	if name == "" {
		name = filepath.Base(root)
	}
	if snap.TotalFiles == 0 {
		return fmt.Sprintf("%s contains no analyzable files yet.", name)
	}

	var b strings.Builder
	kind := snap.ProjectType
	if kind == "" || kind == "general" {
		kind = "software"
	}
	fmt.Fprintf(&b, "%s is a %s project with %d files", name, kind, snap.TotalFiles)
	if snap.TotalLinesOfCode > 0 {
		fmt.Fprintf(&b, " and %d lines of code", snap.TotalLinesOfCode)
	}
	if len(snap.PrimaryLanguages) > 0 {
		fmt.Fprintf(&b, ", written mainly in %s", joinAnd(snap.PrimaryLanguages))
	}
	if len(snap.Frameworks) > 0 {
		fmt.Fprintf(&b, " using %s", joinAnd(snap.Frameworks))
	}
	b.WriteString(".")
	return b.String()
}

// defaultInsights guarantees the snapshot carries at least one finding,
// including for a project with nothing in it.
func defaultInsights(snap *insights.Snapshot) []string {
	if snap.TotalFiles == 0 {
		return []string{"No source files were found; the project may be new or fully excluded by the walk filters."}
	}
	var out []string
	if len(snap.PrimaryLanguages) > 0 {
		out = append(out, fmt.Sprintf("The codebase is primarily %s.", joinAnd(snap.PrimaryLanguages)))
	}
	if len(snap.MainEntryPoints) > 0 {
		out = append(out, fmt.Sprintf("Likely entry point: %s.", snap.MainEntryPoints[0]))
	}
	if snap.Quality != nil {
		if snap.Quality.HasTests {
			out = append(out, "The project carries an automated test suite.")
		} else {
			out = append(out, "No test files were detected.")
		}
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("The project contains %d files across %d file types.",
			snap.TotalFiles, len(snap.FileTypeHistogram)))
	}
	return out
}

// recommendationsFor derives improvement suggestions from the quality
// probes. Ordering is stable so re-analysis of an unchanged tree keeps
// the list identical.
func recommendationsFor(root string, snap *insights.Snapshot) []string {
	if snap.Quality == nil {
		return nil
	}
	var recs []string
	if !snap.Quality.HasDocumentation {
		recs = append(recs, "Add a README.md file to document your project")
	}
	if !gitmeta.IsRepository(root) {
		recs = append(recs, "Initialize Git version control with 'git init'")
	}
	if !snap.Quality.HasTests {
		recs = append(recs, "Add automated tests to improve code reliability")
	}
	if !snap.Quality.HasCI {
		recs = append(recs, "Consider setting up CI/CD for automated testing and deployment")
	}
	if len(snap.ConfigFiles) == 0 && snap.TotalFiles > 0 {
		recs = append(recs, "Add dependency management (package.json, requirements.txt, etc.)")
	}
	if !snap.Quality.HasLinting {
		recs = append(recs, "Add a linter configuration to keep the codebase consistent")
	}
	return recs
}

// attachGitMetadata records repository state so insights viewers can show
// branch and dirtiness next to the analysis results. A non-repository
// leaves the zero Info in place, empty strings and all.
func (c *Coordinator) attachGitMetadata(root string, snap *insights.Snapshot) {
	snap.GitInfo = gitmeta.Probe(root)
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
