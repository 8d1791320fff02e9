package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"leviatan/internal/analysis"
	"leviatan/internal/jobs"
)

// ChunkAnalyzeRequest is the body for POST /api/v1/analyze/chunk.
type ChunkAnalyzeRequest struct {
	ProjectPath string `json:"projectPath"`
	ChunkSize   int    `json:"chunkSize,omitempty"`
	Cursor      string `json:"cursor,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	ProjectPath string `json:"projectPath"`
	Force       bool   `json:"force,omitempty"`
}

// AnalyzeAccepted is the 202 response for a queued analysis job.
type AnalyzeAccepted struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// handleAnalyzeChunk runs one chunk of an incremental analysis. The call
// blocks for at most the chunk budget; the client loops on the returned
// cursor until done is true.
func (s *Server) handleAnalyzeChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}

	var req ChunkAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectPath == "" {
		BadRequest(w, "projectPath is required")
		return
	}
	if req.ChunkSize < 0 {
		BadRequest(w, "chunkSize must be non-negative")
		return
	}

	result, err := s.deps.Coordinator.AnalyzeChunk(r.Context(), analysis.ChunkRequest{
		ProjectPath: req.ProjectPath,
		ChunkSize:   req.ChunkSize,
		Cursor:      req.Cursor,
	})
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, result, http.StatusOK)
}

// handleAnalyze queues a full analysis as a background job and returns
// immediately. Progress flows through the event stream; the final state
// lands on the job record.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectPath == "" {
		BadRequest(w, "projectPath is required")
		return
	}
	if s.deps.Jobs == nil {
		WriteError(w, fmt.Errorf("job runner is not running"), http.StatusServiceUnavailable)
		return
	}

	job, err := jobs.NewJob(jobs.JobTypeFullAnalysis, jobs.AnalyzeScope{
		ProjectPath: req.ProjectPath,
		Force:       req.Force,
	})
	if err != nil {
		InternalError(w, "failed to create job: "+err.Error())
		return
	}

	if err := s.deps.Jobs.Submit(job); err != nil {
		InternalError(w, "failed to queue job: "+err.Error())
		return
	}

	WriteJSON(w, AnalyzeAccepted{
		JobID:  job.ID,
		Status: string(job.Status),
	}, http.StatusAccepted)
}
