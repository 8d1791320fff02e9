// Package complexity scores functions with cyclomatic and cognitive
// complexity metrics via tree-sitter. The analyzer only works in cgo
// builds; callers gate on IsAvailable and degrade to structural metrics
// when it reports false.
package complexity

// Language identifies a tree-sitter grammar.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

// FunctionComplexity holds the scores for one function or method.
type FunctionComplexity struct {
	Name       string `json:"name"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
	Lines      int    `json:"lines"`
	Cyclomatic int    `json:"cyclomatic"`
	Cognitive  int    `json:"cognitive"`
}

// FileComplexity aggregates the function scores of one file. Error is set
// when the file could not be parsed; the zero aggregate is still valid.
type FileComplexity struct {
	Path              string               `json:"path"`
	Language          Language             `json:"language"`
	Functions         []FunctionComplexity `json:"functions"`
	FunctionCount     int                  `json:"functionCount"`
	TotalCyclomatic   int                  `json:"totalCyclomatic"`
	TotalCognitive    int                  `json:"totalCognitive"`
	AverageCyclomatic float64              `json:"averageCyclomatic"`
	AverageCognitive  float64              `json:"averageCognitive"`
	MaxCyclomatic     int                  `json:"maxCyclomatic"`
	MaxCognitive      int                  `json:"maxCognitive"`
	Error             string               `json:"error,omitempty"`
}

// Aggregate fills the summary fields from Functions.
func (fc *FileComplexity) Aggregate() {
	fc.FunctionCount = len(fc.Functions)
	if fc.FunctionCount == 0 {
		return
	}
	for _, f := range fc.Functions {
		fc.TotalCyclomatic += f.Cyclomatic
		fc.TotalCognitive += f.Cognitive
		if f.Cyclomatic > fc.MaxCyclomatic {
			fc.MaxCyclomatic = f.Cyclomatic
		}
		if f.Cognitive > fc.MaxCognitive {
			fc.MaxCognitive = f.Cognitive
		}
	}
	fc.AverageCyclomatic = float64(fc.TotalCyclomatic) / float64(fc.FunctionCount)
	fc.AverageCognitive = float64(fc.TotalCognitive) / float64(fc.FunctionCount)
}

// MostComplex returns the function with the highest cyclomatic score, or
// nil when the file has no functions.
func (fc *FileComplexity) MostComplex() *FunctionComplexity {
	var top *FunctionComplexity
	for i := range fc.Functions {
		if top == nil || fc.Functions[i].Cyclomatic > top.Cyclomatic {
			top = &fc.Functions[i]
		}
	}
	return top
}

// LanguageFromExtension maps a lowercased extension (dot included) to its
// grammar.
func LanguageFromExtension(ext string) (Language, bool) {
	switch ext {
	case ".go":
		return LangGo, true
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py", ".pyw":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}
