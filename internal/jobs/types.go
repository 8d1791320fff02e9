package jobs

import (
	"encoding/json"
)

// DefaultDeepChunkSize is the per-request file count for chunked deep
// analysis when the scope does not set one.
const DefaultDeepChunkSize = 500

// AnalyzeScope defines what a full_analysis job works on.
type AnalyzeScope struct {
	ProjectPath string `json:"projectPath"`
	// Force re-analyzes even when a fresh snapshot exists.
	Force bool `json:"force,omitempty"`
}

// ParseAnalyzeScope parses the scope JSON from a full_analysis job. An
// empty scope yields a zero value; the handler rejects the missing
// project path.
func ParseAnalyzeScope(scopeJSON string) (*AnalyzeScope, error) {
	if scopeJSON == "" {
		return &AnalyzeScope{}, nil
	}

	var scope AnalyzeScope
	if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
		return nil, err
	}
	return &scope, nil
}

// AnalyzeResult contains the outcome of a full_analysis job.
type AnalyzeResult struct {
	ProjectPath  string   `json:"projectPath"`
	ProjectType  string   `json:"projectType,omitempty"`
	TotalFiles   uint64   `json:"totalFiles"`
	TotalLines   uint64   `json:"totalLinesOfCode"`
	Technologies []string `json:"technologies,omitempty"`
	Duration     string   `json:"duration"`
}

// DeepAnalyzeScope defines what a deep_analysis job works on.
type DeepAnalyzeScope struct {
	ProjectPath string `json:"projectPath"`
	// Analyzer names a registry entry. Empty picks the first enabled
	// analyzer.
	Analyzer  string `json:"analyzer,omitempty"`
	ChunkSize int    `json:"chunkSize,omitempty"`
}

// ParseDeepAnalyzeScope parses the scope JSON from a deep_analysis job.
func ParseDeepAnalyzeScope(scopeJSON string) (*DeepAnalyzeScope, error) {
	if scopeJSON == "" {
		return &DeepAnalyzeScope{ChunkSize: DefaultDeepChunkSize}, nil
	}

	var scope DeepAnalyzeScope
	if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
		return nil, err
	}

	if scope.ChunkSize <= 0 {
		scope.ChunkSize = DefaultDeepChunkSize
	}

	return &scope, nil
}

// DeepAnalyzeResult contains the outcome of a deep_analysis job.
type DeepAnalyzeResult struct {
	Analyzer        string `json:"analyzer"`
	ChunksRetrieved int    `json:"chunksRetrieved"`
	FilesAnalyzed   int    `json:"filesAnalyzed"`
	TotalFilesFound uint64 `json:"totalFilesFound"`
	Summary         string `json:"summary,omitempty"`
	Duration        string `json:"duration"`
}

// ExportScope defines what an export_snapshot job works on.
type ExportScope struct {
	ProjectPath string `json:"projectPath"`
	// Target is the output path. Empty writes insights-export.json.gz
	// into the project root.
	Target string `json:"target,omitempty"`
}

// ParseExportScope parses the scope JSON from an export_snapshot job.
func ParseExportScope(scopeJSON string) (*ExportScope, error) {
	if scopeJSON == "" {
		return &ExportScope{}, nil
	}

	var scope ExportScope
	if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
		return nil, err
	}
	return &scope, nil
}

// ExportResult contains the outcome of an export_snapshot job.
type ExportResult struct {
	Target    string `json:"target"`
	SizeBytes int64  `json:"sizeBytes"`
}
