// Package remote talks to external deep-analysis services: a TOML registry
// of configured endpoints and an HTTP client with retries. A service being
// unreachable is an expected condition, the analysis pipeline falls back to
// its local scan.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leviatan/internal/slogutil"
)

const (
	// DefaultTimeout bounds one analyzer call end to end.
	DefaultTimeout = 30 * time.Second

	defaultMaxRetries = 3
	retryBaseDelay    = 500 * time.Millisecond
	retryMaxDelay     = 5 * time.Second
	maxBodySize       = 10 * 1024 * 1024 // 10MB
)

// Client is an HTTP client for one configured deep-analysis service.
type Client struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
	retry   retryConfig
}

type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient builds a client for the given analyzer entry.
func NewClient(cfg AnalyzerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Client{
		name:    cfg.Name,
		baseURL: cfg.URL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
		retry: retryConfig{
			maxRetries: defaultMaxRetries,
			baseDelay:  retryBaseDelay,
			maxDelay:   retryMaxDelay,
		},
	}
}

// ServiceError is a non-2xx reply from the analyzer.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analyzer returned %d: %s", e.StatusCode, e.Message)
}

// Health probes GET /health. Any error means the service should not be
// used for this analysis pass.
func (c *Client) Health(ctx context.Context) error {
	data, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("failed to parse health response: %w", err)
	}
	if status.Status != "healthy" {
		return fmt.Errorf("analyzer reports status %q", status.Status)
	}
	return nil
}

// Analyze asks the service to analyze the project directory. The service
// reads the path directly, so it only works for analyzers sharing a
// filesystem with this process.
func (c *Client) Analyze(ctx context.Context, projectPath string) (*Analysis, error) {
	data, err := c.post(ctx, "/analyze", analyzeRequest{ProjectPath: projectPath})
	if err != nil {
		return nil, err
	}

	var reply analyzeResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse analyze response: %w", err)
	}
	if !reply.Success || reply.Analysis == nil {
		msg := reply.Error
		if msg == "" {
			msg = "analyzer returned no result"
		}
		return nil, fmt.Errorf("remote analysis failed: %s", msg)
	}
	return reply.Analysis, nil
}

// AnalyzeChunk requests one slice of a large project. The service walks the
// tree itself and reports progress through ChunkMetadata on the reply.
func (c *Client) AnalyzeChunk(ctx context.Context, projectPath string, chunkSize, chunkIndex int) (*Analysis, error) {
	req := analyzeRequest{
		ProjectPath: projectPath,
		ChunkMode:   true,
		ChunkSize:   chunkSize,
		ChunkIndex:  chunkIndex,
	}
	data, err := c.post(ctx, "/analyze", req)
	if err != nil {
		return nil, err
	}

	var reply analyzeResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse analyze response: %w", err)
	}
	if !reply.Success || reply.Analysis == nil {
		msg := reply.Error
		if msg == "" {
			msg = "analyzer returned no result"
		}
		return nil, fmt.Errorf("remote analysis failed: %s", msg)
	}
	if reply.Analysis.ChunkMetadata == nil {
		return nil, fmt.Errorf("analyzer does not support chunked analysis")
	}
	return reply.Analysis, nil
}

type analyzeRequest struct {
	ProjectPath string `json:"project_path"`
	ChunkMode   bool   `json:"chunk_mode,omitempty"`
	ChunkSize   int    `json:"chunk_size,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
}

type analyzeResponse struct {
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// doRequest performs a request with exponential backoff. Network failures
// and 5xx replies retry; 4xx replies return immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid analyzer URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	var bodyData []byte
	if body != nil {
		bodyData, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > c.retry.maxDelay {
				delay = c.retry.maxDelay
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			c.logger.Debug("retrying analyzer request", "analyzer", c.name, "attempt", attempt+1, "url", u.String())
		}

		var reqBody io.Reader
		if bodyData != nil {
			reqBody = strings.NewReader(string(bodyData))
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "leviatan-analyzer-client/1.0")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.retry.maxRetries, lastErr)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return c.readBody(resp)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return c.readBody(resp)
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errReply struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &errReply) == nil && errReply.Error != "" {
			msg = errReply.Error
		}
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}
