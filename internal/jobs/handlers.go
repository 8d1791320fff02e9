package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"leviatan/internal/analysis"
	"leviatan/internal/insights"
	"leviatan/internal/paths"
	"leviatan/internal/remote"
)

// maxDeepChunks bounds the chunk loop so a misbehaving analyzer that
// never clears has_more_chunks cannot wedge a worker.
const maxDeepChunks = 1000

// DefaultExportFileName is the export target when the scope names none.
const DefaultExportFileName = "insights-export.json.gz"

// RegisterDefaultHandlers wires the standard handlers onto a runner.
func RegisterDefaultHandlers(r *Runner, coord *analysis.Coordinator, store *insights.Store, logger *slog.Logger) {
	r.RegisterHandler(JobTypeFullAnalysis, FullAnalysisHandler(coord))
	r.RegisterHandler(JobTypeDeepAnalysis, DeepAnalysisHandler(logger))
	r.RegisterHandler(JobTypeExportSnapshot, ExportHandler(store))
}

// FullAnalysisHandler runs the analysis strategy chain for the scoped
// project. Fine-grained progress flows through the progress publisher
// as the coordinator works; the job row records the outcome.
func FullAnalysisHandler(coord *analysis.Coordinator) JobHandler {
	return func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		scope, err := ParseAnalyzeScope(job.Scope)
		if err != nil {
			return nil, fmt.Errorf("invalid analyze scope: %w", err)
		}
		if scope.ProjectPath == "" {
			return nil, fmt.Errorf("analyze scope is missing projectPath")
		}

		start := time.Now()
		var snap *insights.Snapshot
		if scope.Force {
			snap, err = coord.Refresh(ctx, scope.ProjectPath)
		} else {
			snap, err = coord.Run(ctx, scope.ProjectPath)
		}
		if err != nil {
			return nil, err
		}

		return &AnalyzeResult{
			ProjectPath:  snap.ProjectPath,
			ProjectType:  snap.ProjectType,
			TotalFiles:   snap.TotalFiles,
			TotalLines:   snap.TotalLinesOfCode,
			Technologies: snap.Technologies,
			Duration:     time.Since(start).Round(time.Millisecond).String(),
		}, nil
	}
}

// DeepAnalysisHandler retrieves chunked deep-analysis results from a
// registered analyzer, persisting per-chunk progress on the job row.
// The retrieved report lives in the job result; the snapshot path for
// remote results stays the one-shot strategy in the analysis chain.
func DeepAnalysisHandler(logger *slog.Logger) JobHandler {
	return func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		scope, err := ParseDeepAnalyzeScope(job.Scope)
		if err != nil {
			return nil, fmt.Errorf("invalid deep analyze scope: %w", err)
		}
		if scope.ProjectPath == "" {
			return nil, fmt.Errorf("deep analyze scope is missing projectPath")
		}

		root, err := paths.CanonicalAbs(scope.ProjectPath)
		if err != nil {
			return nil, fmt.Errorf("project path unusable: %w", err)
		}

		analyzer, err := pickAnalyzer(root, scope.Analyzer)
		if err != nil {
			return nil, err
		}

		client := remote.NewClient(*analyzer, logger)
		if err := client.Health(ctx); err != nil {
			return nil, fmt.Errorf("analyzer %q unhealthy: %w", analyzer.Name, err)
		}

		start := time.Now()
		result := &DeepAnalyzeResult{Analyzer: analyzer.Name}
		for index := 0; ; index++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if index >= maxDeepChunks {
				return nil, fmt.Errorf("analyzer %q did not terminate chunking after %d chunks", analyzer.Name, maxDeepChunks)
			}

			a, err := client.AnalyzeChunk(ctx, root, scope.ChunkSize, index)
			if err != nil {
				return nil, fmt.Errorf("chunk %d failed: %w", index, err)
			}

			meta := a.ChunkMetadata
			result.ChunksRetrieved++
			result.FilesAnalyzed += meta.FilesInChunk
			result.TotalFilesFound = meta.TotalFilesFound
			if a.Insights.Summary != "" {
				result.Summary = a.Insights.Summary
			}
			progress(int(meta.CompletionPercentage))

			if !meta.HasMoreChunks {
				break
			}
		}

		result.Duration = time.Since(start).Round(time.Millisecond).String()
		return result, nil
	}
}

// pickAnalyzer resolves the scope's analyzer name against the project's
// registry, defaulting to the first enabled entry.
func pickAnalyzer(root, name string) (*remote.AnalyzerConfig, error) {
	reg, err := remote.LoadRegistry(root)
	if err != nil {
		return nil, err
	}

	enabled := reg.EnabledAnalyzers()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled analyzers registered for %s", root)
	}

	if name == "" {
		return &enabled[0], nil
	}
	for i := range enabled {
		if enabled[i].Name == name {
			return &enabled[i], nil
		}
	}
	return nil, fmt.Errorf("analyzer %q not found or not enabled", name)
}

// ExportHandler writes a gzipped snapshot export to the scoped target.
func ExportHandler(store *insights.Store) JobHandler {
	return func(ctx context.Context, job *Job, progress func(int)) (interface{}, error) {
		scope, err := ParseExportScope(job.Scope)
		if err != nil {
			return nil, fmt.Errorf("invalid export scope: %w", err)
		}
		if scope.ProjectPath == "" {
			return nil, fmt.Errorf("export scope is missing projectPath")
		}

		root, err := paths.CanonicalAbs(scope.ProjectPath)
		if err != nil {
			return nil, fmt.Errorf("project path unusable: %w", err)
		}

		target := scope.Target
		if target == "" {
			target = filepath.Join(root, DefaultExportFileName)
		}

		f, err := os.Create(target)
		if err != nil {
			return nil, fmt.Errorf("failed to create export file: %w", err)
		}

		if err := store.Export(root, f); err != nil {
			f.Close()
			os.Remove(target)
			return nil, err
		}
		if err := f.Close(); err != nil {
			os.Remove(target)
			return nil, fmt.Errorf("failed to finish export file: %w", err)
		}

		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}

		return &ExportResult{
			Target:    target,
			SizeBytes: info.Size(),
		}, nil
	}
}
