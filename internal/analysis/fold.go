package analysis

import (
	"fmt"

	"leviatan/internal/classify"
	"leviatan/internal/insights"
)

// snapshotFromAccumulator projects the running aggregate into snapshot
// fields. Maps and slices are copied so the caller's snapshot stays
// stable while later chunks keep mutating the accumulator.
func snapshotFromAccumulator(projectPath string, acc *classify.Accumulator) *insights.Snapshot {
	histogram := make(map[string]uint64, len(acc.Histogram))
	for ext, n := range acc.Histogram {
		histogram[ext] = n
	}
	deps := make(map[string]string, len(acc.Dependencies))
	for name, version := range acc.Dependencies {
		deps[name] = version
	}
	return &insights.Snapshot{
		ProjectPath:       projectPath,
		Technologies:      acc.TechnologyList(),
		Frameworks:        acc.FrameworkList(),
		PrimaryLanguages:  acc.PrimaryLanguages(),
		TotalFiles:        acc.TotalFiles,
		TotalLinesOfCode:  acc.TotalLines,
		FileTypeHistogram: histogram,
		Dependencies:      deps,
		ProjectType:       acc.ProjectType(),
		SetupInstructions: copyStrings(acc.SetupInstructions),
		RunCommands:       copyStrings(acc.RunCommands),
		MainEntryPoints:   copyStrings(acc.EntryPoints),
		ConfigFiles:       copyStrings(acc.ConfigFiles),
	}
}

// hotspotInsights turns recorded complexity hot spots into reader-facing
// findings. An empty slice means no function crossed the flag bar, or the
// build has no parser support.
func hotspotInsights(spots []hotspot) []string {
	if len(spots) == 0 {
		return nil
	}
	top := spots[0]
	out := []string{fmt.Sprintf("Most complex function: %s (cyclomatic %d) in %s",
		top.Function, top.Cyclomatic, top.Path)}
	if len(spots) > 1 {
		out = append(out, fmt.Sprintf("%d functions exceed cyclomatic complexity %d; consider refactoring these hot spots first",
			len(spots), complexityFlagBar))
	}
	return out
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
