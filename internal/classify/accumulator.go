package classify

import (
	"sort"
	"strings"

	"leviatan/internal/walker"
)

// Accumulator folds per-file Deltas into project-level totals. One
// accumulator serves one analysis run; a fresh run always starts empty, so
// technology and framework presence is binary per run, never carried over.
type Accumulator struct {
	TotalFiles uint64
	TotalLines uint64

	// Languages counts classified files per language, Histogram counts
	// every walked file per extension.
	Languages map[string]uint64
	Histogram map[string]uint64

	Technologies map[string]bool
	Frameworks   map[string]bool

	ConfigFiles []string
	EntryPoints []string

	Dependencies map[string]string

	RunCommands       []string
	SetupInstructions []string

	HasTests bool
	HasDocs  bool
	HasCI    bool
	HasLint  bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		Languages:    make(map[string]uint64),
		Histogram:    make(map[string]uint64),
		Technologies: make(map[string]bool),
		Frameworks:   make(map[string]bool),
		Dependencies: make(map[string]string),
	}
}

// Apply folds one file's classification into the running totals.
func (a *Accumulator) Apply(fd *walker.FileDescriptor, d *Delta) {
	a.TotalFiles++
	a.TotalLines += d.Lines
	if fd.Extension != "" {
		a.Histogram[fd.Extension]++
	}
	if d.Language != "" {
		a.Languages[d.Language]++
	}
	for _, t := range d.Technologies {
		a.Technologies[t] = true
	}
	for _, f := range d.Frameworks {
		a.Frameworks[f] = true
	}
	if d.IsConfigFile {
		a.ConfigFiles = append(a.ConfigFiles, fd.RelativePath)
	}
	if d.IsEntryPoint {
		a.EntryPoints = append(a.EntryPoints, fd.RelativePath)
	}
	for name, version := range d.Dependencies {
		a.Dependencies[name] = version
	}
	a.RunCommands = appendUnique(a.RunCommands, d.RunCommands...)
	a.SetupInstructions = appendUnique(a.SetupInstructions, d.SetupInstructions...)
	a.HasTests = a.HasTests || d.HasTestHint
	a.HasDocs = a.HasDocs || d.HasDocHint
	a.HasCI = a.HasCI || d.HasCIHint
	a.HasLint = a.HasLint || d.HasLintHint
}

// TechnologyList returns the detected technologies sorted alphabetically.
func (a *Accumulator) TechnologyList() []string {
	return sortedKeys(a.Technologies)
}

// FrameworkList returns the detected frameworks sorted alphabetically.
func (a *Accumulator) FrameworkList() []string {
	return sortedKeys(a.Frameworks)
}

// PrimaryLanguages returns up to three languages ordered by descending
// file count, ties broken alphabetically.
func (a *Accumulator) PrimaryLanguages() []string {
	langs := make([]string, 0, len(a.Languages))
	for lang := range a.Languages {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if a.Languages[langs[i]] != a.Languages[langs[j]] {
			return a.Languages[langs[i]] > a.Languages[langs[j]]
		}
		return langs[i] < langs[j]
	})
	if len(langs) > 3 {
		langs = langs[:3]
	}
	return langs
}

var frontendFrameworks = map[string]bool{
	"React": true, "Vue.js": true, "Angular": true, "Svelte": true,
	"Next.js": true, "jQuery": true, "Tailwind CSS": true, "Bootstrap": true,
}

var backendFrameworks = map[string]bool{
	"Express": true, "Django": true, "Flask": true, "FastAPI": true,
	"Spring": true, "Rails": true, "Laravel": true, "Gin": true,
	"Echo": true, "Actix": true, "Axum": true,
}

var dataScienceDeps = []string{"pandas", "numpy", "scipy", "jupyter", "scikit-learn"}

// ProjectType derives a coarse project category from weighted framework,
// dependency, and layout votes.
func (a *Accumulator) ProjectType() string {
	votes := make(map[string]int)
	for fw := range a.Frameworks {
		switch {
		case fw == "Electron":
			votes["desktop"] += 3
		case frontendFrameworks[fw]:
			votes["web-frontend"] += 2
		case backendFrameworks[fw]:
			votes["web-backend"] += 2
		}
	}
	if a.Histogram[".ipynb"] > 0 {
		votes["data-science"] += 3
	}
	for _, dep := range dataScienceDeps {
		if _, ok := a.Dependencies[dep]; ok {
			votes["data-science"] += 2
		}
	}
	for _, entry := range a.EntryPoints {
		if strings.HasPrefix(entry, "cmd/") {
			votes["cli"] += 2
		}
	}

	best, bestScore := "", 0
	for _, t := range []string{"desktop", "data-science", "web-backend", "web-frontend", "cli"} {
		if votes[t] > bestScore {
			best, bestScore = t, votes[t]
		}
	}
	if best != "" {
		return best
	}
	if len(a.EntryPoints) == 0 && a.TotalFiles > 0 {
		return "library"
	}
	return "general"
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, have := range list {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
