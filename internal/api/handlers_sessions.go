package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"leviatan/internal/session"
)

// StartSessionRequest is the body for POST /api/v1/sessions.
type StartSessionRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Goal      string `json:"goal,omitempty"`
}

// StartSessionResponse carries the ID of a freshly started session.
type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// EndSessionRequest is the body for POST /api/v1/sessions/:id/end.
type EndSessionRequest struct {
	Achievements []string `json:"achievements,omitempty"`
}

// SessionsResponse lists session records for one project.
type SessionsResponse struct {
	Sessions   []session.Record `json:"sessions"`
	TotalCount int              `json:"totalCount"`
}

// LogActionRequest wraps an action so that an omitted success field
// defaults to true. The outer field shadows the embedded one during
// decoding; actions are assumed successful unless the client says
// otherwise.
type LogActionRequest struct {
	session.Action
	Success *bool `json:"success"`
}

// ActionLogged is the fire-and-forget acknowledgement for logged actions.
type ActionLogged struct {
	Success bool `json:"success"`
}

// handleSessions starts a session or lists a project's sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.startSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		MethodNotAllowed(w)
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		BadRequest(w, "projectId is required")
		return
	}

	id := s.deps.Sessions.StartSession(r.Context(), req.ProjectID, req.UserID, req.Goal)

	WriteJSON(w, StartSessionResponse{SessionID: id}, http.StatusCreated)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		BadRequest(w, "projectId is required")
		return
	}

	if QueryParamBool(r, "active", false) {
		rec, err := s.deps.Sessions.ActiveSession(r.Context(), projectID)
		if err != nil {
			WriteAnyError(w, err)
			return
		}
		if rec == nil {
			NotFound(w, "no active session for project")
			return
		}
		WriteJSON(w, rec, http.StatusOK)
		return
	}

	records, err := s.deps.Sessions.ProjectSessions(r.Context(), projectID)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, SessionsResponse{
		Sessions:   records,
		TotalCount: len(records),
	}, http.StatusOK)
}

// handleSession routes /api/v1/sessions/:id and /api/v1/sessions/:id/end.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := GetPathParam(r, "/api/v1/sessions/")
	if rest == "" {
		BadRequest(w, "session ID is required")
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "end" && r.Method == http.MethodPost:
		s.endSession(w, r, parts[0])
	default:
		NotFound(w, "unknown session route")
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.deps.Sessions.Session(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, rec, http.StatusOK)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request, id string) {
	// An empty body means no achievements.
	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := s.deps.Sessions.EndSession(r.Context(), id, req.Achievements); err != nil {
		WriteAnyError(w, err)
		return
	}

	rec, err := s.deps.Sessions.Session(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, rec, http.StatusOK)
}

// handleLogAction appends one entry to the developer action log. Logging
// never fails from the client's point of view; persistence problems are
// the daemon's to sort out.
func (s *Server) handleLogAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}

	var req LogActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		BadRequest(w, "projectId is required")
		return
	}
	if req.Action.Type == "" {
		BadRequest(w, "actionType is required")
		return
	}

	action := req.Action
	action.Success = true
	if req.Success != nil {
		action.Success = *req.Success
	}

	s.deps.Sessions.LogAction(r.Context(), action)

	WriteJSON(w, ActionLogged{Success: true}, http.StatusOK)
}

// handleGetContext reports what the developer is doing in a project,
// derived from the recent action log.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		BadRequest(w, "projectId is required")
		return
	}

	summary, err := s.deps.Sessions.AnalyzeProjectContext(r.Context(), projectID)
	if err != nil {
		WriteAnyError(w, err)
		return
	}

	WriteJSON(w, summary, http.StatusOK)
}
