package classify

import (
	"reflect"
	"testing"
)

func TestAccumulator_Apply(t *testing.T) {
	acc := NewAccumulator()

	files := []struct {
		rel     string
		content string
	}{
		{"main.go", "package main\n\nfunc main() {}\n"},
		{"util.go", "package main\n"},
		{"web/app.js", `import React from "react"`},
		{"README.md", "# demo\n"},
	}
	for _, f := range files {
		fd := textFile(f.rel, f.content)
		acc.Apply(fd, Classify(fd))
	}

	if acc.TotalFiles != 4 {
		t.Errorf("TotalFiles = %d, want 4", acc.TotalFiles)
	}
	// 4 + 2 + 1 + 2 lines across the four samples.
	if acc.TotalLines != 9 {
		t.Errorf("TotalLines = %d, want 9", acc.TotalLines)
	}
	if acc.Languages["Go"] != 2 || acc.Languages["JavaScript"] != 1 {
		t.Errorf("Languages = %v", acc.Languages)
	}
	if acc.Histogram[".go"] != 2 || acc.Histogram[".md"] != 1 {
		t.Errorf("Histogram = %v", acc.Histogram)
	}
	if !acc.Frameworks["React"] {
		t.Errorf("Frameworks = %v, want React", acc.Frameworks)
	}
	if !reflect.DeepEqual(acc.EntryPoints, []string{"main.go"}) {
		t.Errorf("EntryPoints = %v", acc.EntryPoints)
	}
	if !acc.HasDocs {
		t.Error("HasDocs = false, want true")
	}
	if acc.HasTests {
		t.Error("HasTests = true, want false")
	}
}

func TestAccumulator_DedupesCommands(t *testing.T) {
	acc := NewAccumulator()
	manifest := `{"scripts": {"start": "node index.js"}}`

	for _, rel := range []string{"package.json", "apps/web/package.json"} {
		fd := textFile(rel, manifest)
		acc.Apply(fd, Classify(fd))
	}

	if !reflect.DeepEqual(acc.RunCommands, []string{"npm start"}) {
		t.Errorf("RunCommands = %v, want single npm start", acc.RunCommands)
	}
	if !reflect.DeepEqual(acc.SetupInstructions, []string{"npm install"}) {
		t.Errorf("SetupInstructions = %v", acc.SetupInstructions)
	}
	if len(acc.ConfigFiles) != 2 {
		t.Errorf("ConfigFiles = %v, want both manifests", acc.ConfigFiles)
	}
}

func TestAccumulator_PrimaryLanguages(t *testing.T) {
	acc := NewAccumulator()
	acc.Languages = map[string]uint64{
		"Go":     5,
		"Python": 5,
		"HTML":   9,
		"Shell":  1,
	}

	want := []string{"HTML", "Go", "Python"}
	if got := acc.PrimaryLanguages(); !reflect.DeepEqual(got, want) {
		t.Errorf("PrimaryLanguages = %v, want %v", got, want)
	}
}

func TestAccumulator_TechnologyListSorted(t *testing.T) {
	acc := NewAccumulator()
	acc.Technologies["npm"] = true
	acc.Technologies["Docker"] = true
	acc.Technologies["Node.js"] = true

	want := []string{"Docker", "Node.js", "npm"}
	if got := acc.TechnologyList(); !reflect.DeepEqual(got, want) {
		t.Errorf("TechnologyList = %v, want %v", got, want)
	}
}

func TestAccumulator_ProjectType(t *testing.T) {
	tests := []struct {
		name  string
		setup func(acc *Accumulator)
		want  string
	}{
		{
			"react app",
			func(acc *Accumulator) { acc.Frameworks["React"] = true },
			"web-frontend",
		},
		{
			"django service",
			func(acc *Accumulator) { acc.Frameworks["Django"] = true },
			"web-backend",
		},
		{
			"electron beats react",
			func(acc *Accumulator) {
				acc.Frameworks["Electron"] = true
				acc.Frameworks["React"] = true
			},
			"desktop",
		},
		{
			"full stack reads as backend",
			func(acc *Accumulator) {
				acc.Frameworks["React"] = true
				acc.Frameworks["Express"] = true
			},
			"web-backend",
		},
		{
			"notebook project",
			func(acc *Accumulator) {
				acc.TotalFiles = 3
				acc.Histogram[".ipynb"] = 2
			},
			"data-science",
		},
		{
			"pandas dependency",
			func(acc *Accumulator) {
				acc.Dependencies["pandas"] = "2.1"
				acc.Dependencies["numpy"] = "1.26"
			},
			"data-science",
		},
		{
			"cmd layout",
			func(acc *Accumulator) {
				acc.EntryPoints = append(acc.EntryPoints, "cmd/app/main.go")
			},
			"cli",
		},
		{
			"no entry points",
			func(acc *Accumulator) { acc.TotalFiles = 12 },
			"library",
		},
		{
			"plain entry point",
			func(acc *Accumulator) {
				acc.TotalFiles = 2
				acc.EntryPoints = append(acc.EntryPoints, "main.py")
			},
			"general",
		},
		{
			"empty tree",
			func(acc *Accumulator) {},
			"general",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			tt.setup(acc)
			if got := acc.ProjectType(); got != tt.want {
				t.Errorf("ProjectType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique([]string{"a"}, "b", "a", "c", "b")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("appendUnique = %v, want %v", got, want)
	}
}
