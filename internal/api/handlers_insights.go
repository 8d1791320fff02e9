package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"leviatan/internal/errors"
)

// UpdateNotesRequest is the body for PUT /api/v1/insights.
type UpdateNotesRequest struct {
	ProjectPath string `json:"projectPath"`
	Notes       string `json:"notes"`
}

// handleInsights reads or annotates the stored snapshot for a project.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getInsights(w, r)
	case http.MethodPut:
		s.updateInsightNotes(w, r)
	default:
		MethodNotAllowed(w)
	}
}

func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		BadRequest(w, "path is required")
		return
	}

	snap, err := s.deps.Insights.Read(path)
	if err != nil {
		WriteAnyError(w, err)
		return
	}
	if snap == nil {
		WriteLeviError(w, errors.NewLeviError(errors.SnapshotMissing,
			fmt.Sprintf("No analysis snapshot exists for %q", path),
			nil, errors.GetSuggestedFixes(errors.SnapshotMissing), nil))
		return
	}

	WriteJSON(w, snap, http.StatusOK)
}

func (s *Server) updateInsightNotes(w http.ResponseWriter, r *http.Request) {
	var req UpdateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectPath == "" {
		BadRequest(w, "projectPath is required")
		return
	}

	snap, err := s.deps.Insights.UpdateNotes(req.ProjectPath, req.Notes)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, snap, http.StatusOK)
}

// handleInsightsExport streams the snapshot as a gzip download.
func (s *Server) handleInsightsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		BadRequest(w, "path is required")
		return
	}

	// Resolve missing snapshots to a JSON 404 before any download
	// headers go out.
	snap, err := s.deps.Insights.Read(path)
	if err != nil {
		WriteAnyError(w, err)
		return
	}
	if snap == nil {
		WriteLeviError(w, errors.NewLeviError(errors.SnapshotMissing,
			fmt.Sprintf("No analysis snapshot exists for %q", path),
			nil, errors.GetSuggestedFixes(errors.SnapshotMissing), nil))
		return
	}

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		name = "project"
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", name+"-insights.json.gz"))

	if err := s.deps.Insights.Export(path, w); err != nil {
		// Headers are already out; log instead of rewriting the
		// response as JSON mid-stream.
		s.logger.Error("snapshot export failed", "path", path, "error", err)
	}
}
