// Package analysis drives project analysis end to end. The Coordinator
// walks and classifies a tree in bounded chunks, each call returning a
// resumable cursor, and the strategy chain decides whether results come
// from an external analyzer, a fresh enough stored snapshot, or a local
// scan.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leviatan/internal/classify"
	"leviatan/internal/complexity"
	"leviatan/internal/config"
	"leviatan/internal/errors"
	"leviatan/internal/insights"
	"leviatan/internal/paths"
	"leviatan/internal/progress"
	"leviatan/internal/slogutil"
	"leviatan/internal/walker"
)

// ChunkRequest asks for one bounded slice of analysis work.
type ChunkRequest struct {
	ProjectPath string
	// ChunkSize caps files processed this call. 0 uses the configured
	// default.
	ChunkSize int
	// Cursor resumes a prior chunk. Empty starts a fresh analysis.
	Cursor string
	// Budget bounds this call's per-file analysis time. 0 uses the
	// configured default. Tree enumeration and cursor replay run before
	// the budgeted loop and honor only the request context, so a chunk
	// over a very large tree can exceed the budget by the walk cost.
	Budget time.Duration
}

// ChunkResult reports one chunk's outcome. The final chunk carries a
// terminal cursor; replaying it yields an immediate done result with no
// snapshot, so callers must stop on Done, not on an empty cursor.
type ChunkResult struct {
	Done                 bool               `json:"done"`
	Cursor               string             `json:"cursor,omitempty"`
	CompletionPercentage float64            `json:"completionPercentage"`
	FilesProcessed       int                `json:"filesProcessed"`
	TotalFilesFound      uint64             `json:"totalFilesFoundSoFar"`
	SkippedFiles         uint64             `json:"skippedFiles,omitempty"`
	Snapshot             *insights.Snapshot `json:"snapshot,omitempty"`
}

// Coordinator owns the analysis pipeline for all projects in a process.
// Chunks of one analysis run are sequential by contract (the cursor chain
// enforces that); concurrent analyses of different projects are safe.
type Coordinator struct {
	logger     *slog.Logger
	cfg        *config.Config
	store      *insights.Store
	publisher  *progress.Publisher
	complexity *complexity.Analyzer
	provider   TextCompletionProvider

	mu    sync.Mutex
	carry map[string]*carryState
}

// carryState is the in-memory aggregate between chunks of one analysis,
// keyed by walk fingerprint. It is rebuilt from a prefix re-walk when a
// cursor outlives the process that issued it.
type carryState struct {
	acc           *classify.Accumulator
	hotspots      []hotspot
	functions     int
	cyclomaticSum int
}

type hotspot struct {
	Path       string
	Function   string
	Cyclomatic int
}

const (
	maxHotspots       = 8
	complexityFlagBar = 10
)

func NewCoordinator(cfg *config.Config, store *insights.Store, pub *progress.Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Coordinator{
		logger:     logger,
		cfg:        cfg,
		store:      store,
		publisher:  pub,
		complexity: complexity.NewAnalyzer(),
		carry:      make(map[string]*carryState),
	}
}

// SetTextProvider installs an optional narrative generator. Without one,
// summaries fall back to a deterministic template.
func (c *Coordinator) SetTextProvider(p TextCompletionProvider) {
	c.provider = p
}

// AnalyzeChunk processes up to ChunkSize files within the time budget and
// returns a cursor when more remain. Cancelling ctx stops the chunk early
// at a file boundary; the returned cursor is still valid.
func (c *Coordinator) AnalyzeChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if req.ProjectPath == "" {
		return nil, errors.NewInvalidParameterError("projectPath", "must not be empty")
	}
	root, err := paths.CanonicalAbs(req.ProjectPath)
	if err != nil {
		return nil, errors.NewProjectNotFoundError(req.ProjectPath, err)
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = c.cfg.Analysis.ChunkSize
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	budget := req.Budget
	if budget <= 0 {
		budget = time.Duration(c.cfg.Analysis.ChunkBudgetMs) * time.Millisecond
	}
	if budget <= 0 {
		budget = 10 * time.Second
	}

	opts := c.walkOptions()
	fp := walkFingerprint(root, opts)

	var cur Cursor
	if req.Cursor != "" {
		decoded, err := DecodeCursor(req.Cursor, fp)
		if err != nil {
			return nil, err
		}
		cur = *decoded
		if cur.Done {
			// Replaying a final cursor: the analysis already finished.
			return &ChunkResult{
				Done:                 true,
				CompletionPercentage: 100,
				TotalFilesFound:      cur.Found,
				SkippedFiles:         cur.Skipped,
			}, nil
		}
	}

	var st *carryState
	if req.Cursor == "" {
		c.dropCarry(fp)
		st = &carryState{acc: classify.NewAccumulator()}
		cur.Found = c.countFiles(root, opts)
	} else {
		st = c.takeCarry(fp)
		if st == nil {
			c.logger.Info("carry state missing, rebuilding from walk prefix",
				"path", root, "resumeAfter", cur.LastPath)
			st, err = c.rebuildCarry(ctx, root, opts, cur.LastPath)
			if err != nil {
				return nil, err
			}
		}
	}

	wopts := opts
	wopts.MaxFiles = 0 // the global cap is enforced across chunks below
	wopts.ResumeAfter = cur.LastPath
	walk, err := walker.Start(root, wopts)
	if err != nil {
		return nil, errors.NewProjectNotFoundError(req.ProjectPath, err)
	}

	deadline := time.Now().Add(budget)
	maxFiles := uint64(c.cfg.Walker.MaxFiles)
	visited := cur.Visited
	lastPath := cur.LastPath
	processed := 0
	done := false

	for processed < chunkSize {
		if ctx.Err() != nil {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if maxFiles > 0 && visited >= maxFiles {
			done = true
			break
		}
		fd, ok := walk.Next()
		if !ok {
			done = true
			break
		}
		delta := classify.Classify(fd)
		st.acc.Apply(fd, delta)
		c.foldComplexity(ctx, st, fd)
		visited++
		processed++
		lastPath = fd.RelativePath
	}
	found := cur.Found
	if visited > found {
		found = visited
	}
	skipped := cur.Skipped + uint64(walk.Skipped())

	completion := 0.0
	switch {
	case done:
		completion = 100
	case found > 0:
		completion = float64(visited) / float64(found) * 100
		if completion > 99.9 {
			completion = 99.9
		}
	}

	snap := snapshotFromAccumulator(root, st.acc)
	result := &ChunkResult{
		Done:                 done,
		CompletionPercentage: completion,
		FilesProcessed:       processed,
		TotalFilesFound:      found,
		SkippedFiles:         skipped,
		Snapshot:             snap,
	}
	result.Cursor = EncodeCursor(Cursor{
		LastPath:    lastPath,
		Visited:     visited,
		Found:       found,
		Skipped:     skipped,
		Done:        done,
		Fingerprint: fp,
	})
	if done {
		quality := classify.Assess(root, st.acc)
		if st.functions > 0 {
			quality.Complexity = &classify.ComplexityMetrics{
				Functions:         st.functions,
				CyclomaticAverage: float64(st.cyclomaticSum) / float64(st.functions),
			}
		}
		snap.Quality = &quality
		snap.Technologies = st.acc.TechnologyList()
		snap.ProjectType = st.acc.ProjectType()
		snap.Insights = hotspotInsights(st.hotspots)
		c.dropCarry(fp)

		// The final chunk persists the run, so a caller driving chunks
		// over HTTP ends with the same stored snapshot as Run.
		c.publish(root, progress.Event{
			Status:    progress.StatusScanningComplete,
			FileCount: found,
			Message:   fmt.Sprintf("Scan complete: %d files", found),
		})
		c.publish(root, progress.Event{Status: progress.StatusAnalyzingFiles, Message: "Building insights"})
		c.buildNarrative(ctx, root, snap)
		c.attachGitMetadata(root, snap)
		merged, err := c.store.Merge(root, snap)
		if err != nil {
			c.publishError(root, err)
			return nil, err
		}
		result.Snapshot = merged
		c.publish(root, progress.Event{
			Status:       progress.StatusInsightsSaved,
			InsightsPath: paths.SnapshotPath(root),
			Message:      "Insights saved",
		})
	} else {
		c.putCarry(fp, st)
	}

	c.publish(root, progress.Event{
		Status:     progress.StatusChunkComplete,
		FileCount:  visited,
		Completion: completion,
	})
	return result, nil
}

// countFiles enumerates the tree without reading file contents, giving
// the completion estimate its denominator. Unreadable files still count;
// the real walk reports them as skipped later.
func (c *Coordinator) countFiles(root string, opts walker.Options) uint64 {
	opts.SampleSizeBytes = 0
	walk, err := walker.Start(root, opts)
	if err != nil {
		return 0
	}
	var n uint64
	for {
		if _, ok := walk.Next(); !ok {
			return n
		}
		n++
	}
}

// rebuildCarry replays classification over the already-visited prefix of
// the walk. It runs when a cursor is resumed after the process that held
// the aggregate restarted. The replay performs no new analysis work, so
// it honors ctx but not the chunk time budget.
func (c *Coordinator) rebuildCarry(ctx context.Context, root string, opts walker.Options, upTo string) (*carryState, error) {
	st := &carryState{acc: classify.NewAccumulator()}
	if upTo == "" {
		return st, nil
	}
	opts.MaxFiles = 0
	walk, err := walker.Start(root, opts)
	if err != nil {
		return nil, errors.NewProjectNotFoundError(root, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fd, ok := walk.Next()
		if !ok {
			return st, nil
		}
		if fd.RelativePath != upTo && !walker.PathLess(fd.RelativePath, upTo) {
			// The resume point no longer exists; everything from here on
			// belongs to the resumed walk.
			return st, nil
		}
		delta := classify.Classify(fd)
		st.acc.Apply(fd, delta)
		c.foldComplexity(ctx, st, fd)
		if fd.RelativePath == upTo {
			return st, nil
		}
	}
}

// foldComplexity scores the file's sample if a grammar covers it and
// records functions above the flag bar. Safe to call in builds without
// tree-sitter support, where it is a no-op.
func (c *Coordinator) foldComplexity(ctx context.Context, st *carryState, fd *walker.FileDescriptor) {
	fc := c.complexity.AnalyzeSample(ctx, fd.RelativePath, fd.Extension, fd.ContentSample)
	if fc == nil || fc.Error != "" {
		return
	}
	for _, fn := range fc.Functions {
		st.functions++
		st.cyclomaticSum += fn.Cyclomatic
		if fn.Cyclomatic < complexityFlagBar {
			continue
		}
		st.addHotspot(hotspot{
			Path:       fd.RelativePath,
			Function:   fn.Name,
			Cyclomatic: fn.Cyclomatic,
		})
	}
}

func (s *carryState) addHotspot(h hotspot) {
	i := len(s.hotspots)
	for i > 0 && s.hotspots[i-1].Cyclomatic < h.Cyclomatic {
		i--
	}
	if i >= maxHotspots {
		return
	}
	s.hotspots = append(s.hotspots, hotspot{})
	copy(s.hotspots[i+1:], s.hotspots[i:])
	s.hotspots[i] = h
	if len(s.hotspots) > maxHotspots {
		s.hotspots = s.hotspots[:maxHotspots]
	}
}

func (c *Coordinator) walkOptions() walker.Options {
	wc := c.cfg.Walker
	globs := make([]string, 0, len(wc.ExcludeGlobs)+1)
	globs = append(globs, wc.ExcludeGlobs...)
	if !containsString(globs, paths.SnapshotFileName) {
		// The snapshot itself is never part of the analysis.
		globs = append(globs, paths.SnapshotFileName)
	}
	return walker.Options{
		ExcludeDirs:      wc.ExcludeDirs,
		ExcludeGlobs:     globs,
		SkipHiddenDirs:   wc.SkipHiddenDirs,
		UseGitignore:     wc.UseGitignore,
		MaxFileSizeBytes: wc.MaxFileSizeBytes,
		MaxFiles:         wc.MaxFiles,
		MaxDepth:         wc.MaxDepth,
		SampleSizeBytes:  wc.SampleSizeBytes,
		Logger:           c.logger,
	}
}

func (c *Coordinator) takeCarry(fp string) *carryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.carry[fp]
	delete(c.carry, fp)
	return st
}

func (c *Coordinator) putCarry(fp string, st *carryState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carry[fp] = st
}

func (c *Coordinator) dropCarry(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carry, fp)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
