//go:build !cgo

package complexity

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when complexity analysis is compiled out.
var ErrUnavailable = errors.New("complexity analysis requires a cgo build")

// Analyzer is a stub for non-cgo builds; every method fails.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return nil
}

// IsAvailable reports whether complexity analysis was compiled in.
func IsAvailable() bool {
	return false
}

func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*FileComplexity, error) {
	return nil, ErrUnavailable
}

func (a *Analyzer) AnalyzeSample(ctx context.Context, rel, ext string, sample []byte) *FileComplexity {
	return nil
}

func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, source []byte, lang Language) (*FileComplexity, error) {
	return nil, ErrUnavailable
}
