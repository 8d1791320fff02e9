package slogutil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"leviatan/internal/config"
)

// lokiSink is a fake push endpoint collecting decoded requests.
type lokiSink struct {
	mu   sync.Mutex
	reqs []lokiPushRequest
}

func (s *lokiSink) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req lokiPushRequest
		if json.Unmarshal(body, &req) == nil {
			s.mu.Lock()
			s.reqs = append(s.reqs, req)
			s.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *lokiSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, req := range s.reqs {
		for _, st := range req.Streams {
			for _, v := range st.Values {
				out = append(out, v[1])
			}
		}
	}
	return out
}

func (s *lokiSink) firstStream() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 || len(s.reqs[0].Streams) == 0 {
		return nil
	}
	return s.reqs[0].Streams[0].Stream
}

func newTestLoki(t *testing.T, cfg *config.RemoteLogConfig, base map[string]string) (*LokiHandler, *lokiSink) {
	t.Helper()
	sink := &lokiSink{}
	srv := httptest.NewServer(sink.handler())
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	h, err := NewLokiHandler(cfg, base, slog.LevelInfo)
	if err != nil {
		t.Fatalf("NewLokiHandler: %v", err)
	}
	return h, sink
}

func record(msg string, attrs ...slog.Attr) slog.Record {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func TestNewLokiHandler_RequiresEndpoint(t *testing.T) {
	if _, err := NewLokiHandler(nil, nil, slog.LevelInfo); err == nil {
		t.Error("nil config accepted")
	}
	if _, err := NewLokiHandler(&config.RemoteLogConfig{}, nil, slog.LevelInfo); err == nil {
		t.Error("empty endpoint accepted")
	}
}

func TestLokiHandler_LevelGate(t *testing.T) {
	h, err := NewLokiHandler(&config.RemoteLogConfig{Endpoint: "http://localhost:3100"}, nil, slog.LevelWarn)
	if err != nil {
		t.Fatalf("NewLokiHandler: %v", err)
	}
	defer h.Stop()

	gates := map[slog.Level]bool{
		slog.LevelDebug: false,
		slog.LevelInfo:  false,
		slog.LevelWarn:  true,
		slog.LevelError: true,
	}
	for level, want := range gates {
		if got := h.Enabled(context.Background(), level); got != want {
			t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestLokiHandler_ShipsAllEntriesOnStop(t *testing.T) {
	h, sink := newTestLoki(t, &config.RemoteLogConfig{BatchSize: 3}, nil)
	h.Start()

	for i := 0; i < 7; i++ {
		if err := h.Handle(context.Background(), record("event")); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := len(sink.lines()); got != 7 {
		t.Errorf("shipped %d entries, want 7", got)
	}
}

func TestLokiHandler_StopWithoutStartFlushes(t *testing.T) {
	h, sink := newTestLoki(t, &config.RemoteLogConfig{}, nil)

	_ = h.Handle(context.Background(), record("queued before start"))
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := len(sink.lines()); got != 1 {
		t.Errorf("shipped %d entries, want 1", got)
	}
}

func TestLokiHandler_StreamLabels(t *testing.T) {
	h, sink := newTestLoki(t,
		&config.RemoteLogConfig{Labels: map[string]string{"env": "prod"}, BatchSize: 1},
		map[string]string{"app": "leviatan", "subsystem": "analysis"})
	h.Start()

	_ = h.Handle(context.Background(), record("labelled"))
	_ = h.Stop()

	labels := sink.firstStream()
	if labels == nil {
		t.Fatal("no stream received")
	}
	want := map[string]string{
		"app":       "leviatan",
		"subsystem": "analysis",
		"env":       "prod",
		"level":     "INFO",
	}
	for k, v := range want {
		if labels[k] != v {
			t.Errorf("label %s = %q, want %q", k, labels[k], v)
		}
	}
}

func TestLokiHandler_LogfmtLine(t *testing.T) {
	h, sink := newTestLoki(t, &config.RemoteLogConfig{}, nil)

	_ = h.Handle(context.Background(), record("scan done",
		slog.String("root", "/srv/app"),
		slog.Int("files", 42),
		slog.Bool("partial", false),
		slog.Duration("took", 5*time.Second),
	))
	_ = h.Stop()

	lines := sink.lines()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	for _, part := range []string{
		"level=INFO",
		`msg="scan done"`,
		`root="/srv/app"`,
		"files=42",
		"partial=false",
		"took=5s",
	} {
		if !strings.Contains(lines[0], part) {
			t.Errorf("line %q missing %q", lines[0], part)
		}
	}
}

func TestLokiHandler_WithAttrsAndGroup(t *testing.T) {
	h, sink := newTestLoki(t, &config.RemoteLogConfig{}, nil)

	bound := h.WithAttrs([]slog.Attr{slog.String("component", "walker")})
	grouped := bound.WithGroup("chunk")
	_ = grouped.Handle(context.Background(), record("progress", slog.Int("visited", 9)))
	_ = h.Stop()

	lines := sink.lines()
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0], `component="walker"`) {
		t.Errorf("bound attr missing: %q", lines[0])
	}
	if !strings.Contains(lines[0], "chunk.visited=9") {
		t.Errorf("group-qualified attr missing: %q", lines[0])
	}

	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should be a no-op")
	}
}
