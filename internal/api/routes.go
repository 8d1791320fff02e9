package api

import (
	"net/http"

	"leviatan/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Health and status
	s.router.HandleFunc("/api/v1/health", s.handleHealth)
	s.router.HandleFunc("/api/v1/status", s.handleStatus)

	// Chunked analysis plus full runs as background jobs
	s.router.HandleFunc("/api/v1/analyze/chunk", s.handleAnalyzeChunk) // POST
	s.router.HandleFunc("/api/v1/analyze", s.handleAnalyze)            // POST (async job)

	// Analysis progress event stream
	s.router.HandleFunc("/api/v1/progress", s.handleProgress) // GET ?projectId=...

	// Insights snapshots
	s.router.HandleFunc("/api/v1/insights", s.handleInsights)              // GET ?path=..., PUT notes
	s.router.HandleFunc("/api/v1/insights/export", s.handleInsightsExport) // GET ?path=...

	// Session tracking
	s.router.HandleFunc("/api/v1/sessions", s.handleSessions)  // POST start, GET ?projectId=...
	s.router.HandleFunc("/api/v1/sessions/", s.handleSession)  // GET /:id, POST /:id/end
	s.router.HandleFunc("/api/v1/actions", s.handleLogAction)  // POST
	s.router.HandleFunc("/api/v1/context", s.handleGetContext) // GET ?projectId=...

	// Background job management
	s.router.HandleFunc("/api/v1/jobs", s.handleListJobs) // GET
	s.router.HandleFunc("/api/v1/jobs/", s.handleJobRoutes) // GET /:id, POST /:id/cancel

	// Root endpoint
	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot handles requests to the root path
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"name":    "Leviatan HTTP API",
		"version": version.Version,
		"endpoints": []string{
			"GET /api/v1/health - Health check",
			"GET /api/v1/status - Daemon status",
			"POST /api/v1/analyze/chunk - Analyze one chunk of a project",
			"POST /api/v1/analyze - Queue a full analysis job",
			"GET /api/v1/progress?projectId=... - Analysis progress event stream",
			"GET /api/v1/insights?path=... - Read project insights",
			"PUT /api/v1/insights - Update insight notes",
			"GET /api/v1/insights/export?path=... - Download compressed snapshot",
			"POST /api/v1/sessions - Start a session",
			"GET /api/v1/sessions?projectId=... - List project sessions",
			"GET /api/v1/sessions/:id - Get session",
			"POST /api/v1/sessions/:id/end - End session",
			"POST /api/v1/actions - Log developer action",
			"GET /api/v1/context?projectId=... - Current project context",
			"GET /api/v1/jobs - List background jobs",
			"GET /api/v1/jobs/:id - Get job status",
			"POST /api/v1/jobs/:id/cancel - Cancel job",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}
