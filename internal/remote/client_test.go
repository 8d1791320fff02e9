package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(AnalyzerConfig{Name: "test", URL: server.URL, TimeoutSeconds: 5}, nil)
	client.retry.baseDelay = time.Millisecond
	return client
}

func TestAnalyze_Success(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			ProjectPath string `json:"project_path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.ProjectPath != "/work/demo" {
			t.Errorf("project_path = %q", req.ProjectPath)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"analysis": map[string]interface{}{
				"project_path": req.ProjectPath,
				"basic_info":   map[string]interface{}{"name": "demo", "file_count": 42},
				"technologies": map[string]interface{}{
					"primary_language":   "python",
					"languages_detected": []string{"python", "javascript"},
				},
				"frameworks": []string{"flask", "react"},
				"quality_assessment": map[string]interface{}{
					"has_tests":     true,
					"quality_score": 7,
				},
				"recommendations": []string{"Add a README.md file"},
				"insights": map[string]interface{}{
					"summary":         "A small Flask service with a React frontend.",
					"ai_service_used": nil,
				},
			},
		})
	}))

	analysis, err := client.Analyze(context.Background(), "/work/demo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.BasicInfo.FileCount != 42 {
		t.Errorf("FileCount = %d, want 42", analysis.BasicInfo.FileCount)
	}
	if analysis.Technologies.PrimaryLanguage != "python" {
		t.Errorf("PrimaryLanguage = %q", analysis.Technologies.PrimaryLanguage)
	}
	if len(analysis.Frameworks) != 2 || analysis.Frameworks[0] != "flask" {
		t.Errorf("Frameworks = %v", analysis.Frameworks)
	}
	if analysis.Quality.QualityScore != 7 || !analysis.Quality.HasTests {
		t.Errorf("Quality = %+v", analysis.Quality)
	}
	if analysis.Insights.Summary == "" {
		t.Error("Insights.Summary should be populated")
	}
}

func TestAnalyze_ServiceReportsFailure(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "Analysis failed: timed out on large project",
		})
	}))

	_, err := client.Analyze(context.Background(), "/work/huge")
	if err == nil || !strings.Contains(err.Error(), "timed out on large project") {
		t.Errorf("Analyze() error = %v, want service failure message", err)
	}
}

func TestAnalyze_ClientErrorDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Project path does not exist"})
	}))

	_, err := client.Analyze(context.Background(), "/gone")
	serviceErr, ok := err.(*ServiceError)
	if !ok {
		t.Fatalf("Analyze() error = %v, want *ServiceError", err)
	}
	if serviceErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", serviceErr.StatusCode)
	}
	if !strings.Contains(serviceErr.Message, "does not exist") {
		t.Errorf("Message = %q", serviceErr.Message)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"analysis": map[string]interface{}{"project_path": "/work/demo"},
		})
	}))

	analysis, err := client.Analyze(context.Background(), "/work/demo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.ProjectPath != "/work/demo" {
		t.Errorf("ProjectPath = %q", analysis.ProjectPath)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHealth(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestHealth_Degraded(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
	}))

	if err := client.Health(context.Background()); err == nil {
		t.Error("Health() should fail for a non-healthy status")
	}
}

func TestHealth_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // refuse connections from the start

	client := NewClient(AnalyzerConfig{Name: "down", URL: server.URL, TimeoutSeconds: 1}, nil)
	client.retry.baseDelay = time.Millisecond
	if err := client.Health(context.Background()); err == nil {
		t.Error("Health() should fail when the service is unreachable")
	}
}

func TestBearerToken(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	client.token = "s3cret"

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestAnalyzeChunk(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectPath string `json:"project_path"`
			ChunkMode   bool   `json:"chunk_mode"`
			ChunkSize   int    `json:"chunk_size"`
			ChunkIndex  int    `json:"chunk_index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if !req.ChunkMode || req.ChunkSize != 500 || req.ChunkIndex != 2 {
			t.Errorf("chunk params = %+v, want mode on, size 500, index 2", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"analysis": map[string]interface{}{
				"project_path": req.ProjectPath,
				"chunk_metadata": map[string]interface{}{
					"files_in_chunk":        500,
					"completion_percentage": 60.0,
					"total_files_found":     2500,
					"has_more_chunks":       true,
				},
			},
		})
	}))

	analysis, err := client.AnalyzeChunk(context.Background(), "/some/project", 500, 2)
	if err != nil {
		t.Fatalf("AnalyzeChunk failed: %v", err)
	}
	meta := analysis.ChunkMetadata
	if meta == nil {
		t.Fatal("reply carried no chunk metadata")
	}
	if meta.FilesInChunk != 500 || meta.TotalFilesFound != 2500 || !meta.HasMoreChunks {
		t.Errorf("chunk metadata = %+v", meta)
	}
	if meta.CompletionPercentage != 60.0 {
		t.Errorf("CompletionPercentage = %v, want 60", meta.CompletionPercentage)
	}
}

func TestAnalyzeChunk_FirstChunkCarriesIndex(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Analyzers read chunk_index unconditionally in chunk mode, so
		// index 0 must be on the wire, not omitted as a zero value.
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		idx, ok := req["chunk_index"]
		if !ok {
			t.Error("chunk_index missing from first chunk request")
		} else if idx != 0.0 {
			t.Errorf("chunk_index = %v, want 0", idx)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"analysis": map[string]interface{}{
				"project_path": "/some/project",
				"chunk_metadata": map[string]interface{}{
					"files_in_chunk":        500,
					"completion_percentage": 20.0,
					"total_files_found":     2500,
					"has_more_chunks":       true,
				},
			},
		})
	}))

	if _, err := client.AnalyzeChunk(context.Background(), "/some/project", 500, 0); err != nil {
		t.Fatalf("AnalyzeChunk failed: %v", err)
	}
}

func TestAnalyzeChunk_UnsupportedService(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A plain reply without chunk_metadata means the service ignored
		// chunk mode.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"analysis": map[string]interface{}{"project_path": "/some/project"},
		})
	}))

	_, err := client.AnalyzeChunk(context.Background(), "/some/project", 500, 0)
	if err == nil || !strings.Contains(err.Error(), "chunked") {
		t.Errorf("error = %v, want unsupported-chunking failure", err)
	}
}
