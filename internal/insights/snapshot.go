// Package insights persists the durable per-project analysis snapshot.
package insights

import (
	"sort"
	"time"

	"leviatan/internal/classify"
	"leviatan/internal/gitmeta"
)

// SnapshotVersion is stamped into every written snapshot. Records without
// a version read as absent.
const SnapshotVersion = "1.0"

// HistoryLimit bounds PreviousAnalyses; the oldest entry is evicted.
const HistoryLimit = 10

// HistoryEntry records one completed analysis.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Changes   []string  `json:"changes"`
}

// Snapshot is the durable insights record for one project. Exactly one
// snapshot exists per project directory, created on first analysis and
// mutated in place thereafter.
type Snapshot struct {
	Version     string `json:"version"`
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	ProjectPath string `json:"projectPath"`

	CreatedAt    time.Time `json:"createdAt"`
	LastAnalyzed time.Time `json:"lastAnalyzed"`
	LastModified time.Time `json:"lastModified"`

	Technologies     []string `json:"technologies"`
	Frameworks       []string `json:"frameworks"`
	PrimaryLanguages []string `json:"primaryLanguages"`

	TotalFiles        uint64            `json:"totalFiles"`
	TotalLinesOfCode  uint64            `json:"totalLinesOfCode"`
	FileTypeHistogram map[string]uint64 `json:"fileTypes"`

	Dependencies map[string]string `json:"dependencies"`

	ProjectType string                   `json:"projectType,omitempty"`
	Quality     *classify.QualityMetrics `json:"codeQualityMetrics,omitempty"`

	GitInfo gitmeta.Info `json:"gitInfo"`

	AISummary         string   `json:"aiSummary"`
	Insights          []string `json:"insights"`
	Recommendations   []string `json:"recommendations"`
	SetupInstructions []string `json:"setupInstructions"`
	RunCommands       []string `json:"runCommands"`

	MainEntryPoints []string `json:"mainEntryPoints"`
	ConfigFiles     []string `json:"configFiles"`

	PreviousAnalyses []HistoryEntry `json:"previousAnalyses"`

	UserNotes      string                 `json:"userNotes"`
	CustomSettings map[string]interface{} `json:"customSettings"`
}

// IsFresh reports whether snap was analyzed within maxAge. Freshness is a
// caller policy; the store itself never refuses a stale read.
func IsFresh(snap *Snapshot, maxAge time.Duration) bool {
	if snap == nil {
		return false
	}
	return time.Since(snap.LastAnalyzed) <= maxAge
}

// normalize replaces nil collections so snapshots always serialize with
// [] and {} instead of null.
func normalize(snap *Snapshot) {
	if snap.Technologies == nil {
		snap.Technologies = []string{}
	}
	if snap.Frameworks == nil {
		snap.Frameworks = []string{}
	}
	if snap.PrimaryLanguages == nil {
		snap.PrimaryLanguages = []string{}
	}
	if snap.FileTypeHistogram == nil {
		snap.FileTypeHistogram = map[string]uint64{}
	}
	if snap.Dependencies == nil {
		snap.Dependencies = map[string]string{}
	}
	if snap.Insights == nil {
		snap.Insights = []string{}
	}
	if snap.Recommendations == nil {
		snap.Recommendations = []string{}
	}
	if snap.SetupInstructions == nil {
		snap.SetupInstructions = []string{}
	}
	if snap.RunCommands == nil {
		snap.RunCommands = []string{}
	}
	if snap.MainEntryPoints == nil {
		snap.MainEntryPoints = []string{}
	}
	if snap.ConfigFiles == nil {
		snap.ConfigFiles = []string{}
	}
	if snap.PreviousAnalyses == nil {
		snap.PreviousAnalyses = []HistoryEntry{}
	}
	if snap.CustomSettings == nil {
		snap.CustomSettings = map[string]interface{}{}
	}
}

// equalStringSets compares two lists ignoring order and duplicates.
func equalStringSets(a, b []string) bool {
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	as = dedupSorted(as)
	bs = dedupSorted(bs)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}
