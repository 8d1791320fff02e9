package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"leviatan/internal/paths"
	"leviatan/internal/progress"
)

// heartbeatInterval keeps idle event streams alive through proxies that
// drop quiet connections.
const heartbeatInterval = 30 * time.Second

// handleProgress streams analysis progress for one project as
// server-sent events. A reconnecting client replaces its previous
// subscription, so at most one stream per project is live.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		BadRequest(w, "projectId is required")
		return
	}
	// The pipeline publishes under canonical project paths, so the
	// subscription key must match even when the client sent a trailing
	// slash or a symlinked path. Non-path identifiers and paths that
	// cannot resolve subscribe under the raw string.
	if filepath.IsAbs(projectID) {
		if canonical, err := paths.CanonicalAbs(projectID); err == nil {
			projectID = canonical
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.deps.Publisher.Subscribe(projectID)
	defer s.deps.Publisher.Unsubscribe(sub)

	// Initial event confirms the stream is up before any analysis runs.
	writeSSE(w, progress.Event{
		ProjectID: projectID,
		Status:    "connected",
		Timestamp: time.Now().UTC(),
	})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				// Replaced by a newer subscription for this project.
				return
			}
			writeSSE(w, ev)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeSSE writes one event in the text/event-stream framing.
func writeSSE(w http.ResponseWriter, ev progress.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
