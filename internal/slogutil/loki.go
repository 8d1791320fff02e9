package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"leviatan/internal/config"
)

// LokiHandler is a slog.Handler that forwards records to a Grafana Loki
// push endpoint. Records are rendered to logfmt lines, queued on a
// channel, and shipped in batches by a single background goroutine, so
// Handle never blocks on the network. When the queue is full the record
// is dropped; log shipping must not be able to stall the subsystem.
type LokiHandler struct {
	min    slog.Level
	attrs  []slog.Attr // bound via WithAttrs, already group-qualified
	prefix string      // dotted group prefix for record attrs
	ship   *lokiShipper
}

// lokiShipper owns the batch buffer and the HTTP client. It is shared
// by every WithAttrs/WithGroup clone of the handler.
type lokiShipper struct {
	url      string
	labels   map[string]string
	limit    int
	interval time.Duration
	client   *http.Client

	queue   chan lokiEntry
	quit    chan struct{}
	drained chan struct{}
	running bool
}

type lokiEntry struct {
	at    time.Time
	level string
	line  string
}

// Loki's push API groups entries into streams keyed by label set.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewLokiHandler builds a handler for the configured endpoint.
// baseLabels are attached to every stream; config labels win on
// conflict, and a host label is filled in when neither provides one.
func NewLokiHandler(cfg *config.RemoteLogConfig, baseLabels map[string]string, level slog.Level) (*LokiHandler, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("loki endpoint is required")
	}

	labels := make(map[string]string, len(baseLabels)+len(cfg.Labels)+1)
	for k, v := range baseLabels {
		labels[k] = v
	}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	if _, ok := labels["host"]; !ok {
		if host, err := os.Hostname(); err == nil {
			labels["host"] = host
		}
	}

	limit := cfg.BatchSize
	if limit <= 0 {
		limit = 100
	}
	interval := 5 * time.Second
	if cfg.FlushInterval != "" {
		if d, err := time.ParseDuration(cfg.FlushInterval); err == nil {
			interval = d
		}
	}

	return &LokiHandler{
		min: level,
		ship: &lokiShipper{
			url:      strings.TrimSuffix(cfg.Endpoint, "/") + "/loki/api/v1/push",
			labels:   labels,
			limit:    limit,
			interval: interval,
			client:   &http.Client{Timeout: 10 * time.Second},
			queue:    make(chan lokiEntry, 4*limit),
			quit:     make(chan struct{}),
			drained:  make(chan struct{}),
		},
	}, nil
}

// Start launches the background shipping goroutine.
func (h *LokiHandler) Start() {
	if h.ship.running {
		return
	}
	h.ship.running = true
	go h.ship.run()
}

// Stop flushes everything still queued and waits for the shipper to
// finish. Safe to call when Start was never called.
func (h *LokiHandler) Stop() error {
	s := h.ship
	if !s.running {
		s.push(s.drainQueue(nil))
		return nil
	}
	close(s.quit)
	<-s.drained
	return nil
}

func (h *LokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *LokiHandler) Handle(_ context.Context, r slog.Record) error {
	e := lokiEntry{at: r.Time, level: r.Level.String(), line: h.formatLine(r)}
	select {
	case h.ship.queue <- e:
	default:
		// Queue full: the shipper is stalled or overwhelmed. Drop.
	}
	return nil
}

// WithAttrs returns a clone carrying the extra attrs; the shipper and
// its queue are shared.
func (h *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &c
}

func (h *LokiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// formatLine renders a record as a logfmt line:
//
//	level=INFO msg="scan complete" files=12
func (h *LokiHandler) formatLine(r slog.Record) string {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(r.Level.String())
	b.WriteString(" msg=")
	b.WriteString(strconv.Quote(r.Message))
	for _, a := range h.attrs {
		writeLogfmt(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeLogfmt(&b, h.prefix, a)
		return true
	})
	return b.String()
}

func writeLogfmt(b *strings.Builder, prefix string, a slog.Attr) {
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		b.WriteString(strconv.Quote(v.String()))
	case slog.KindInt64:
		b.WriteString(strconv.FormatInt(v.Int64(), 10))
	case slog.KindUint64:
		b.WriteString(strconv.FormatUint(v.Uint64(), 10))
	case slog.KindFloat64:
		b.WriteString(strconv.FormatFloat(v.Float64(), 'f', -1, 64))
	case slog.KindBool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case slog.KindDuration:
		b.WriteString(v.Duration().String())
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(b, "%v", v.Any())
	}
}

// run accumulates entries and pushes a batch when it reaches the size
// limit, when the flush interval elapses, or on shutdown.
func (s *lokiShipper) run() {
	defer close(s.drained)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	batch := make([]lokiEntry, 0, s.limit)
	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.limit {
				s.push(batch)
				batch = batch[:0]
			}
		case <-tick.C:
			if len(batch) > 0 {
				s.push(batch)
				batch = batch[:0]
			}
		case <-s.quit:
			s.push(s.drainQueue(batch))
			return
		}
	}
}

// drainQueue appends whatever is still queued onto batch without
// blocking.
func (s *lokiShipper) drainQueue(batch []lokiEntry) []lokiEntry {
	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// push sends one batch, grouped into per-level streams so Loki queries
// can filter on the level label. Errors are ignored: logging a shipping
// failure through the same pipeline would loop.
func (s *lokiShipper) push(batch []lokiEntry) {
	if len(batch) == 0 {
		return
	}

	byLevel := make(map[string][][]string)
	for _, e := range batch {
		ts := strconv.FormatInt(e.at.UnixNano(), 10)
		byLevel[e.level] = append(byLevel[e.level], []string{ts, e.line})
	}

	req := lokiPushRequest{Streams: make([]lokiStream, 0, len(byLevel))}
	for level, values := range byLevel {
		stream := make(map[string]string, len(s.labels)+1)
		for k, v := range s.labels {
			stream[k] = v
		}
		stream["level"] = level
		req.Streams = append(req.Streams, lokiStream{Stream: stream, Values: values})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}
