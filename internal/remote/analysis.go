package remote

// Analysis is the deep-analysis report an external service returns. Field
// names follow the service's snake_case wire format.
type Analysis struct {
	Timestamp        string            `json:"timestamp"`
	ProjectPath      string            `json:"project_path"`
	BasicInfo        BasicInfo         `json:"basic_info"`
	Technologies     TechnologyReport  `json:"technologies"`
	Frameworks       []string          `json:"frameworks"`
	ExecutionMethods []ExecutionMethod `json:"execution_methods"`
	Quality          QualityReport     `json:"quality_assessment"`
	Recommendations  []string          `json:"recommendations"`
	Insights         InsightReport     `json:"insights"`
	ChunkMetadata    *ChunkMetadata    `json:"chunk_metadata,omitempty"`
}

// ChunkMetadata is present only on replies to chunked analyze requests.
type ChunkMetadata struct {
	FilesInChunk         int     `json:"files_in_chunk"`
	CompletionPercentage float64 `json:"completion_percentage"`
	TotalFilesFound      uint64  `json:"total_files_found"`
	HasMoreChunks        bool    `json:"has_more_chunks"`
}

type BasicInfo struct {
	Name           string `json:"name"`
	SizeBytes      uint64 `json:"size_bytes"`
	FileCount      uint64 `json:"file_count"`
	DirectoryCount uint64 `json:"directory_count"`
}

type TechnologyReport struct {
	PrimaryLanguage   string   `json:"primary_language"`
	LanguagesDetected []string `json:"languages_detected"`
}

// ExecutionMethod is one way to run the analyzed project.
type ExecutionMethod struct {
	Type        string `json:"type"`
	Command     string `json:"command"`
	Description string `json:"description"`
}

type QualityReport struct {
	HasTests         bool `json:"has_tests"`
	HasDocumentation bool `json:"has_documentation"`
	HasCICD          bool `json:"has_ci_cd"`
	HasLinting       bool `json:"has_linting"`
	QualityScore     int  `json:"quality_score"`
}

type InsightReport struct {
	Summary                   string   `json:"summary"`
	ArchitectureAnalysis      string   `json:"architecture_analysis"`
	ImprovementSuggestions    []string `json:"improvement_suggestions"`
	TechnologyRecommendations []string `json:"technology_recommendations"`
	AIServiceUsed             string   `json:"ai_service_used"`
}
