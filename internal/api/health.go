package api

import (
	"net/http"
	"runtime"
	"time"

	"leviatan/internal/scheduler"
	"leviatan/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// StatusResponse represents the daemon status response
type StatusResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Memory    MemoryInfo             `json:"memory"`
	Jobs      map[string]interface{} `json:"jobs,omitempty"`
	Watcher   map[string]interface{} `json:"watcher,omitempty"`
	Schedules int                    `json:"schedules"`
}

// MemoryInfo contains memory usage information
type MemoryInfo struct {
	AllocMB      float64 `json:"allocMb"`
	SysMB        float64 `json:"sysMb"`
	NumGC        uint32  `json:"numGc"`
	NumGoroutine int     `json:"numGoroutine"`
}

// handleHealth responds to health check requests (simple liveness check)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	}

	WriteJSON(w, response, http.StatusOK)
}

// handleStatus reports what the daemon is doing right now
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := StatusResponse{
		Status:    "running",
		Timestamp: time.Now().UTC(),
		Version:   version.Info(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Memory: MemoryInfo{
			AllocMB:      float64(memStats.Alloc) / 1024 / 1024,
			SysMB:        float64(memStats.Sys) / 1024 / 1024,
			NumGC:        memStats.NumGC,
			NumGoroutine: runtime.NumGoroutine(),
		},
	}

	if s.deps.Jobs != nil {
		response.Jobs = s.deps.Jobs.Stats()
	}
	if s.deps.Watcher != nil {
		response.Watcher = s.deps.Watcher.Stats()
	}
	if s.deps.Scheduler != nil {
		if list, err := s.deps.Scheduler.ListSchedules(scheduler.ListSchedulesOptions{}); err == nil {
			response.Schedules = list.TotalCount
		}
	}

	WriteJSON(w, response, http.StatusOK)
}
