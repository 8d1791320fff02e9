package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"leviatan/internal/classify"
	"leviatan/internal/errors"
	"leviatan/internal/insights"
	"leviatan/internal/paths"
	"leviatan/internal/progress"
	"leviatan/internal/remote"
)

// Strategy names, in the order the chain tries them.
const (
	StrategyRemote = "remote"
	StrategyCache  = "cache"
	StrategyLocal  = "local"
)

// Strategy is one way of producing analysis findings for a project. The
// chain tries each in turn until one succeeds.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, projectRoot string) (*insights.Snapshot, error)
}

// Run executes the strategy chain for one project and persists the
// winning result. A cache hit short-circuits without rewriting the
// snapshot, so repeated runs inside the freshness window add no history
// entries.
func (c *Coordinator) Run(ctx context.Context, projectPath string) (*insights.Snapshot, error) {
	return c.run(ctx, projectPath, false)
}

// Refresh re-analyzes even when a fresh snapshot exists. Serve-mode
// callers use it when the tree is known to have changed and the stored
// snapshot is stale by content rather than by age.
func (c *Coordinator) Refresh(ctx context.Context, projectPath string) (*insights.Snapshot, error) {
	return c.run(ctx, projectPath, true)
}

func (c *Coordinator) run(ctx context.Context, projectPath string, skipCache bool) (*insights.Snapshot, error) {
	root, err := paths.CanonicalAbs(projectPath)
	if err != nil {
		return nil, errors.NewProjectNotFoundError(projectPath, err)
	}

	c.publish(root, progress.Event{Status: progress.StatusStarted, Message: "Analysis started"})

	var snap *insights.Snapshot
	var winner string
	for _, s := range c.strategies(root, skipCache) {
		sctx := ctx
		cancel := context.CancelFunc(func() {})
		if d := c.strategyTimeout(s.Name()); d > 0 {
			sctx, cancel = context.WithTimeout(ctx, d)
		}
		result, err := s.Analyze(sctx, root)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				c.publishError(root, ctx.Err())
				return nil, ctx.Err()
			}
			c.logger.Warn("analysis strategy failed, falling back",
				"strategy", s.Name(), "path", root, "error", err)
			continue
		}
		snap = result
		winner = s.Name()
		break
	}
	if snap == nil {
		err := errors.NewLeviError(errors.InternalError,
			fmt.Sprintf("All analysis strategies failed for %q", root), nil, nil, nil)
		c.publishError(root, err)
		return nil, err
	}

	switch winner {
	case StrategyCache:
		c.logger.Info("reusing fresh snapshot",
			"path", root, "age", time.Since(snap.LastAnalyzed).Round(time.Minute))
	case StrategyLocal:
		// AnalyzeChunk already built the narrative and merged the final
		// snapshot into the store when the last chunk completed.
	default:
		c.publish(root, progress.Event{Status: progress.StatusAnalyzingFiles, Message: "Building insights"})
		c.buildNarrative(ctx, root, snap)
		c.attachGitMetadata(root, snap)

		merged, err := c.store.Merge(root, snap)
		if err != nil {
			c.publishError(root, err)
			return nil, err
		}
		c.publish(root, progress.Event{
			Status:       progress.StatusInsightsSaved,
			InsightsPath: paths.SnapshotPath(root),
			Message:      "Insights saved",
		})
		snap = merged
	}
	c.publishCompleted(root, snap)
	return snap, nil
}

// strategies assembles the chain for one run. The remote strategy only
// joins when at least one analyzer is registered and enabled, so local
// setups never log contact failures.
func (c *Coordinator) strategies(root string, skipCache bool) []Strategy {
	var chain []Strategy
	if c.cfg.Remote.Enabled {
		reg, err := remote.LoadRegistry(root)
		if err != nil {
			c.logger.Warn("analyzer registry unreadable, skipping remote analysis",
				"path", root, "error", err)
		} else if analyzers := reg.EnabledAnalyzers(); len(analyzers) > 0 {
			chain = append(chain, &remoteStrategy{
				analyzers: analyzers,
				logger:    c.logger,
				pub:       c.publisher,
			})
		}
	}
	if !skipCache {
		chain = append(chain, &cacheStrategy{
			store:  c.store,
			maxAge: time.Duration(c.cfg.Analysis.FreshnessHours) * time.Hour,
		})
	}
	chain = append(chain, &localStrategy{coord: c})
	return chain
}

func (c *Coordinator) strategyTimeout(name string) time.Duration {
	if name == StrategyRemote {
		return time.Duration(c.cfg.Remote.TimeoutMs) * time.Millisecond
	}
	return 0
}

// remoteStrategy asks registered deep analyzers in order, taking the
// first healthy one's result.
type remoteStrategy struct {
	analyzers []remote.AnalyzerConfig
	logger    *slog.Logger
	pub       *progress.Publisher
}

func (s *remoteStrategy) Name() string { return StrategyRemote }

func (s *remoteStrategy) Analyze(ctx context.Context, root string) (*insights.Snapshot, error) {
	for _, cfg := range s.analyzers {
		client := remote.NewClient(cfg, s.logger)
		if err := client.Health(ctx); err != nil {
			s.logger.Warn("analyzer unhealthy, trying next",
				"analyzer", cfg.Name, "error", err)
			continue
		}
		result, err := client.Analyze(ctx, root)
		if err != nil {
			s.logger.Warn("analyzer request failed, trying next",
				"analyzer", cfg.Name, "error", err)
			continue
		}
		if s.pub != nil {
			s.pub.Publish(root, progress.Event{
				Status:  progress.StatusDeepAnalysisComplete,
				Message: fmt.Sprintf("Deep analysis received from %s", cfg.Name),
			})
		}
		return foldRemoteAnalysis(result), nil
	}
	return nil, fmt.Errorf("no enabled analyzer responded")
}

// cacheStrategy reuses the stored snapshot when it is younger than the
// freshness window. Reading past the window is not an error anywhere
// else; only the chain treats staleness as a miss.
type cacheStrategy struct {
	store  *insights.Store
	maxAge time.Duration
}

func (s *cacheStrategy) Name() string { return StrategyCache }

func (s *cacheStrategy) Analyze(ctx context.Context, root string) (*insights.Snapshot, error) {
	snap, err := s.store.Read(root)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no stored snapshot")
	}
	if !insights.IsFresh(snap, s.maxAge) {
		return nil, fmt.Errorf("snapshot older than %s", s.maxAge)
	}
	return snap, nil
}

// localStrategy drives the chunked coordinator to completion.
type localStrategy struct {
	coord *Coordinator
}

func (s *localStrategy) Name() string { return StrategyLocal }

func (s *localStrategy) Analyze(ctx context.Context, root string) (*insights.Snapshot, error) {
	s.coord.publish(root, progress.Event{
		Status:  progress.StatusScanningFiles,
		Message: "Scanning project files",
	})
	cursor := ""
	for {
		res, err := s.coord.AnalyzeChunk(ctx, ChunkRequest{ProjectPath: root, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		if res.Done {
			// The final chunk published scanning_complete and persisted
			// the merged snapshot.
			return res.Snapshot, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Cursor == "" {
			return nil, fmt.Errorf("chunk returned neither done nor a cursor")
		}
		cursor = res.Cursor
	}
}

// foldRemoteAnalysis maps an analyzer reply onto snapshot fields. The
// service reports lowercase technology keys; they are canonicalized to
// the display names the local classifier uses so the two sources never
// produce duplicate entries that differ only in case.
func foldRemoteAnalysis(a *remote.Analysis) *insights.Snapshot {
	snap := &insights.Snapshot{
		ProjectPath:     a.ProjectPath,
		TotalFiles:      a.BasicInfo.FileCount,
		AISummary:       a.Insights.Summary,
		Recommendations: copyStrings(a.Recommendations),
	}

	for _, lang := range a.Technologies.LanguagesDetected {
		snap.Technologies = appendUnique(snap.Technologies, canonicalTechnology(lang))
	}
	if a.Technologies.PrimaryLanguage != "" {
		snap.PrimaryLanguages = []string{canonicalTechnology(a.Technologies.PrimaryLanguage)}
	}
	for _, fw := range a.Frameworks {
		snap.Frameworks = appendUnique(snap.Frameworks, canonicalFramework(fw))
	}
	for _, m := range a.ExecutionMethods {
		if m.Command != "" {
			snap.RunCommands = append(snap.RunCommands, m.Command)
		}
	}

	q := classify.QualityMetrics{
		HasTests:         a.Quality.HasTests,
		HasDocumentation: a.Quality.HasDocumentation,
		HasCI:            a.Quality.HasCICD,
		HasLinting:       a.Quality.HasLinting,
		Score:            a.Quality.QualityScore,
	}
	snap.Quality = &q

	if a.Insights.ArchitectureAnalysis != "" {
		snap.Insights = append(snap.Insights, a.Insights.ArchitectureAnalysis)
	}
	snap.Insights = append(snap.Insights, a.Insights.ImprovementSuggestions...)
	snap.Insights = append(snap.Insights, a.Insights.TechnologyRecommendations...)
	if a.Insights.AIServiceUsed != "" {
		snap.CustomSettings = map[string]interface{}{
			"aiServiceUsed": a.Insights.AIServiceUsed,
		}
	}
	return snap
}

var canonicalTechNames = map[string]string{
	"javascript": "JavaScript",
	"typescript": "TypeScript",
	"python":     "Python",
	"java":       "Java",
	"csharp":     "C#",
	"cpp":        "C++",
	"c":          "C",
	"rust":       "Rust",
	"go":         "Go",
	"php":        "PHP",
	"ruby":       "Ruby",
	"swift":      "Swift",
	"kotlin":     "Kotlin",
	"dart":       "Dart",
	"scala":      "Scala",
	"html":       "HTML",
	"css":        "CSS",
	"sql":        "SQL",
	"shell":      "Shell",
	"powershell": "PowerShell",
}

var canonicalFrameworkNames = map[string]string{
	"react":    "React",
	"vue":      "Vue.js",
	"angular":  "Angular",
	"svelte":   "Svelte",
	"express":  "Express",
	"django":   "Django",
	"flask":    "Flask",
	"fastapi":  "FastAPI",
	"spring":   "Spring",
	"rails":    "Rails",
	"laravel":  "Laravel",
	"flutter":  "Flutter",
	"unity":    "Unity",
	"electron": "Electron",
}

// appendUnique keeps the technology and framework lists duplicate-free
// when canonicalization collapses case variants onto one name.
func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

func canonicalTechnology(name string) string {
	return canonicalName(canonicalTechNames, name)
}

func canonicalFramework(name string) string {
	return canonicalName(canonicalFrameworkNames, name)
}

func canonicalName(table map[string]string, name string) string {
	if canon, ok := table[strings.ToLower(name)]; ok {
		return canon
	}
	r := []rune(name)
	if len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
	}
	return string(r)
}

func (c *Coordinator) publish(root string, ev progress.Event) {
	if c.publisher != nil {
		c.publisher.Publish(root, ev)
	}
}

func (c *Coordinator) publishError(root string, err error) {
	c.publish(root, progress.Event{Status: progress.StatusError, Error: err.Error()})
}

func (c *Coordinator) publishCompleted(root string, snap *insights.Snapshot) {
	ev := progress.Event{
		Status:       progress.StatusCompleted,
		FileCount:    snap.TotalFiles,
		Completion:   100,
		Technologies: snap.Technologies,
		Message:      "Analysis complete",
	}
	if snap.Quality != nil {
		ev.QualityScore = snap.Quality.Score
	}
	c.publish(root, ev)
}
