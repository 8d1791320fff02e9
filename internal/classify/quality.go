package classify

import (
	"os"
	"path/filepath"
)

// QualityMetrics summarizes repository hygiene signals for a project.
type QualityMetrics struct {
	HasTests         bool `json:"hasTests"`
	HasDocumentation bool `json:"hasDocumentation"`
	HasCI            bool `json:"hasCI"`
	HasLinting       bool `json:"hasLinting"`
	Score            int  `json:"qualityScore"`

	Complexity *ComplexityMetrics `json:"complexity,omitempty"`
}

// ComplexityMetrics aggregates per-function cyclomatic scores for the
// whole project. Present only when the build carries parser support and
// at least one function was scored.
type ComplexityMetrics struct {
	Functions         int     `json:"functions"`
	CyclomaticAverage float64 `json:"cyclomaticAverage"`
}

// Assess combines accumulator hints with direct filesystem probes for
// signals the walk cannot see (workflow files live under a hidden
// directory). Detected workflows are recorded back onto the accumulator
// as a GitHub Actions technology.
func Assess(root string, acc *Accumulator) QualityMetrics {
	if hasGitHubWorkflows(root) {
		acc.HasCI = true
		acc.Technologies["GitHub Actions"] = true
	}

	m := QualityMetrics{
		HasTests:         acc.HasTests,
		HasDocumentation: acc.HasDocs,
		HasCI:            acc.HasCI,
		HasLinting:       acc.HasLint,
	}
	m.Score = scoreQuality(m)
	return m
}

func scoreQuality(m QualityMetrics) int {
	score := 5
	if m.HasTests {
		score += 2
	}
	if m.HasDocumentation {
		score++
	}
	if m.HasCI {
		score++
	}
	if m.HasLinting {
		score++
	}
	if score > 10 {
		score = 10
	}
	return score
}

func hasGitHubWorkflows(root string) bool {
	info, err := os.Stat(filepath.Join(root, ".github", "workflows"))
	if err != nil {
		return false
	}
	return info.IsDir()
}
