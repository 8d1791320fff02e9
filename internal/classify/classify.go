// Package classify detects languages, frameworks, and structural metrics
// from walked file descriptors.
package classify

import (
	"bytes"
	"path"
	"strings"

	"leviatan/internal/walker"
)

// Delta is the classification result for a single file. Deltas are folded
// into an Accumulator by the caller; Classify itself holds no state.
type Delta struct {
	Language          string
	Frameworks        []string
	Technologies      []string
	Lines             uint64
	IsConfigFile      bool
	IsEntryPoint      bool
	Dependencies      map[string]string
	RunCommands       []string
	SetupInstructions []string
	HasTestHint       bool
	HasDocHint        bool
	HasCIHint         bool
	HasLintHint       bool
}

// languageByExtension maps a lowercased extension to its language. The
// table is a strict partition; first (only) match wins.
var languageByExtension = map[string]string{
	".py":     "Python",
	".rs":     "Rust",
	".go":     "Go",
	".js":     "JavaScript",
	".jsx":    "JavaScript",
	".mjs":    "JavaScript",
	".ts":     "TypeScript",
	".tsx":    "TypeScript",
	".java":   "Java",
	".rb":     "Ruby",
	".php":    "PHP",
	".cs":     "C#",
	".cpp":    "C++",
	".cc":     "C++",
	".hpp":    "C++",
	".h":      "C++",
	".c":      "C",
	".kt":     "Kotlin",
	".swift":  "Swift",
	".html":   "HTML",
	".css":    "CSS",
	".scss":   "CSS",
	".sql":    "SQL",
	".sh":     "Shell",
	".bash":   "Shell",
	".r":      "R",
	".scala":  "Scala",
	".dart":   "Dart",
	".vue":    "Vue",
	".svelte": "Svelte",
}

// frameworkSignatures are matched as case-insensitive substrings over the
// content sample. Slice order keeps detection deterministic.
var frameworkSignatures = []struct {
	signature string
	name      string
}{
	{"react", "React"},
	{"vue", "Vue.js"},
	{"angular", "Angular"},
	{"svelte", "Svelte"},
	{"next.config", "Next.js"},
	{"express", "Express"},
	{"django", "Django"},
	{"flask", "Flask"},
	{"fastapi", "FastAPI"},
	{"springframework", "Spring"},
	{"rails", "Rails"},
	{"laravel", "Laravel"},
	{"gin-gonic", "Gin"},
	{"labstack/echo", "Echo"},
	{"actix", "Actix"},
	{"axum", "Axum"},
	{"tailwind", "Tailwind CSS"},
	{"bootstrap", "Bootstrap"},
	{"jquery", "jQuery"},
	{"electron", "Electron"},
	{"jest", "Jest"},
	{"pytest", "pytest"},
	{"junit", "JUnit"},
}

// entryPointNames are exact relative paths treated as main entry points.
var entryPointNames = map[string]bool{
	"main.go":      true,
	"main.py":      true,
	"app.py":       true,
	"manage.py":    true,
	"main.rs":      true,
	"src/main.rs":  true,
	"index.js":     true,
	"index.ts":     true,
	"app.js":       true,
	"server.js":    true,
	"src/index.js": true,
	"src/index.ts": true,
	"src/main.ts":  true,
	"src/main.tsx": true,
	"src/App.jsx":  true,
	"src/App.tsx":  true,
	"Program.cs":   true,
}

// lintConfigNames flag linting/static-analysis tooling.
var lintConfigNames = map[string]bool{
	".eslintrc":         true,
	".eslintrc.json":    true,
	".eslintrc.js":      true,
	".eslintrc.yml":     true,
	"eslint.config.js":  true,
	"eslint.config.mjs": true,
	".golangci.yml":     true,
	".golangci.yaml":    true,
	"ruff.toml":         true,
	".flake8":           true,
	".pylintrc":         true,
	".rubocop.yml":      true,
	"clippy.toml":       true,
	"biome.json":        true,
}

// LanguageForExtension maps a lowercased extension (with dot) to its
// language name, or "" when unknown.
func LanguageForExtension(ext string) string {
	return languageByExtension[ext]
}

// Classify inspects one descriptor and returns its classification delta.
func Classify(fd *walker.FileDescriptor) *Delta {
	d := &Delta{}

	name := path.Base(fd.RelativePath)

	if lang, ok := languageByExtension[fd.Extension]; ok {
		d.Language = lang
	}

	if fd.ContentSample != nil {
		if len(fd.ContentSample) > 0 {
			d.Lines = uint64(bytes.Count(fd.ContentSample, []byte{'\n'})) + 1
		}
		lower := strings.ToLower(string(fd.ContentSample))
		for _, sig := range frameworkSignatures {
			if strings.Contains(lower, sig.signature) {
				d.Frameworks = append(d.Frameworks, sig.name)
			}
		}
	}

	if handler, ok := manifestHandlers[name]; ok {
		d.IsConfigFile = true
		handler(fd.ContentSample, d)
	}

	if entryPointNames[fd.RelativePath] || isCommandMain(fd.RelativePath) {
		d.IsEntryPoint = true
	}

	d.HasTestHint = isTestPath(fd.RelativePath, name)
	d.HasDocHint = isDocPath(fd.RelativePath, name)
	if lintConfigNames[name] {
		d.HasLintHint = true
		d.IsConfigFile = true
	}

	return d
}

// isCommandMain matches the cmd/<name>/main.go layout convention.
func isCommandMain(rel string) bool {
	if !strings.HasPrefix(rel, "cmd/") || !strings.HasSuffix(rel, "/main.go") {
		return false
	}
	return strings.Count(rel, "/") == 2
}

func isTestPath(rel, name string) bool {
	if strings.HasSuffix(name, "_test.go") {
		return true
	}
	if strings.Contains(name, ".test.") || strings.Contains(name, ".spec.") {
		return true
	}
	if strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "test", "tests", "__tests__", "spec":
			return true
		}
	}
	return false
}

func isDocPath(rel, name string) bool {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "README") || strings.HasPrefix(upper, "CONTRIBUTING") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "docs" || seg == "doc" {
			return true
		}
	}
	return false
}
