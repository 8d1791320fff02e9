// Package progress routes analysis status events to subscribers.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"leviatan/internal/slogutil"
)

// Status is the fixed progress vocabulary subscribers render from.
type Status string

const (
	StatusStarted          Status = "started"
	StatusScanningFiles    Status = "scanning_files"
	StatusScanningComplete Status = "scanning_complete"
	StatusAnalyzingFiles   Status = "analyzing_files"
	// Wire name kept for compatibility with existing deep-analyzer
	// consumers.
	StatusDeepAnalysisComplete Status = "flask_analysis_complete"
	StatusChunkComplete        Status = "chunk_complete"
	StatusInsightsSaved        Status = "insights_saved"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
)

// Event is one progress notification for a project.
type Event struct {
	ProjectID string    `json:"projectId"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	FileCount    uint64   `json:"fileCount,omitempty"`
	Completion   float64  `json:"completionPercentage,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	QualityScore int      `json:"qualityScore,omitempty"`
	ScriptPath   string   `json:"scriptPath,omitempty"`
	InsightsPath string   `json:"insightsPath,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// subscriberBuffer absorbs bursts from chunk loops; a subscriber that
// falls further behind loses events rather than stalling analysis.
const subscriberBuffer = 64

// Subscription is the handle returned by Subscribe. Its channel is closed
// when the subscription is replaced or unsubscribed.
type Subscription struct {
	projectID string
	ch        chan Event
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Publisher holds at most one subscriber per project. A later Subscribe
// for the same project silently replaces the earlier one; Publish with
// nobody listening drops the event, never queues it.
type Publisher struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Publisher{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe registers the caller as the project's subscriber, displacing
// any previous one.
func (p *Publisher) Subscribe(projectID string) *Subscription {
	sub := &Subscription{
		projectID: projectID,
		ch:        make(chan Event, subscriberBuffer),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.subs[projectID]; ok {
		close(old.ch)
		p.logger.Debug("progress subscriber replaced", "project", projectID)
	}
	p.subs[projectID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. A handle that was
// already replaced by a newer Subscribe is a no-op, so a stale consumer
// cannot tear down its successor.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[sub.projectID] == sub {
		delete(p.subs, sub.projectID)
		close(sub.ch)
	}
}

// Publish delivers ev to the project's subscriber if one exists. The send
// never blocks; a full buffer drops the event.
func (p *Publisher) Publish(projectID string, ev Event) {
	ev.ProjectID = projectID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	sub, ok := p.subs[projectID]
	if !ok {
		return
	}
	select {
	case sub.ch <- ev:
	default:
		p.logger.Debug("progress event dropped, subscriber behind",
			"project", projectID, "status", ev.Status)
	}
}
