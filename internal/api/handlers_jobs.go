package api

import (
	"net/http"
	"strings"

	"leviatan/internal/jobs"
)

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	opts := jobs.ListJobsOptions{}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = []jobs.JobStatus{jobs.JobStatus(status)}
	}
	if typ := r.URL.Query().Get("type"); typ != "" {
		opts.Type = []jobs.JobType{jobs.JobType(typ)}
	}
	if limit := QueryParamInt(r, "limit", 20); limit > 0 {
		opts.Limit = limit
	}

	resp, err := s.deps.Jobs.ListJobs(opts)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleJobRoutes handles /api/v1/jobs/:id routes
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := GetPathParam(r, "/api/v1/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]

	if jobID == "" {
		BadRequest(w, "job ID is required")
		return
	}

	if len(parts) > 1 && parts[1] == "cancel" {
		s.cancelJob(w, r, jobID)
		return
	}

	s.getJob(w, r, jobID)
}

// getJob handles GET /api/v1/jobs/:id
func (s *Server) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	job, err := s.deps.Jobs.GetJob(jobID)
	if err != nil {
		WriteAnyError(w, err)
		return
	}
	if job == nil {
		NotFound(w, "job not found: "+jobID)
		return
	}

	WriteJSON(w, job, http.StatusOK)
}

// cancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}

	job, err := s.deps.Jobs.GetJob(jobID)
	if err != nil {
		WriteAnyError(w, err)
		return
	}
	if job == nil {
		NotFound(w, "job not found: "+jobID)
		return
	}

	if err := s.deps.Jobs.Cancel(jobID); err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, map[string]interface{}{
		"jobId":  jobID,
		"status": "cancelled",
	}, http.StatusOK)
}
