package classify

import (
	"reflect"
	"testing"
)

func TestParsePackageJSON(t *testing.T) {
	src := `{
  "name": "demo",
  "scripts": {"start": "node index.js", "dev": "vite"},
  "dependencies": {"react": "^18.0.0", "express": "^4.18.2"},
  "devDependencies": {"jest": "^29.0.0"}
}`

	d := &Delta{}
	parsePackageJSON([]byte(src), d)

	wantDeps := map[string]string{
		"react":   "^18.0.0",
		"express": "^4.18.2",
		"jest":    "^29.0.0",
	}
	if !reflect.DeepEqual(d.Dependencies, wantDeps) {
		t.Errorf("Dependencies = %v, want %v", d.Dependencies, wantDeps)
	}
	for _, fw := range []string{"React", "Express", "Jest"} {
		if !hasString(d.Frameworks, fw) {
			t.Errorf("Frameworks = %v, want to contain %q", d.Frameworks, fw)
		}
	}
	if !reflect.DeepEqual(d.RunCommands, []string{"npm start", "npm run dev"}) {
		t.Errorf("RunCommands = %v", d.RunCommands)
	}
	if !reflect.DeepEqual(d.SetupInstructions, []string{"npm install"}) {
		t.Errorf("SetupInstructions = %v", d.SetupInstructions)
	}
}

func TestParsePackageJSON_Malformed(t *testing.T) {
	d := &Delta{}
	parsePackageJSON([]byte("{oops"), d)

	if !hasString(d.Technologies, "Node.js") || !hasString(d.Technologies, "npm") {
		t.Errorf("Technologies = %v, want Node.js and npm", d.Technologies)
	}
	if len(d.Dependencies) != 0 || len(d.RunCommands) != 0 {
		t.Errorf("malformed manifest should not yield deps %v or commands %v", d.Dependencies, d.RunCommands)
	}
}

func TestParseCargoToml(t *testing.T) {
	src := `[package]
name = "demo"

[dependencies]
serde = "1.0"
axum = { version = "0.7", features = ["ws"] }
`

	d := &Delta{}
	parseCargoToml([]byte(src), d)

	if d.Dependencies["serde"] != "1.0" {
		t.Errorf("serde = %q, want 1.0", d.Dependencies["serde"])
	}
	if d.Dependencies["axum"] != "0.7" {
		t.Errorf("axum = %q, want 0.7", d.Dependencies["axum"])
	}
	if !hasString(d.Frameworks, "Axum") {
		t.Errorf("Frameworks = %v, want Axum", d.Frameworks)
	}
	if !hasString(d.RunCommands, "cargo run") {
		t.Errorf("RunCommands = %v, want cargo run", d.RunCommands)
	}
}

func TestParseGoMod(t *testing.T) {
	src := `module demo

go 1.22

require (
	github.com/gin-gonic/gin v1.9.1
	github.com/google/uuid v1.6.0 // indirect
)

require golang.org/x/sync v0.7.0
`

	d := &Delta{}
	parseGoMod([]byte(src), d)

	wantDeps := map[string]string{
		"github.com/gin-gonic/gin": "v1.9.1",
		"github.com/google/uuid":   "v1.6.0",
		"golang.org/x/sync":        "v0.7.0",
	}
	if !reflect.DeepEqual(d.Dependencies, wantDeps) {
		t.Errorf("Dependencies = %v, want %v", d.Dependencies, wantDeps)
	}
	if !hasString(d.Frameworks, "Gin") {
		t.Errorf("Frameworks = %v, want Gin", d.Frameworks)
	}
	if !hasString(d.SetupInstructions, "go mod download") {
		t.Errorf("SetupInstructions = %v", d.SetupInstructions)
	}
}

func TestParseRequirements(t *testing.T) {
	src := `# web stack
flask==2.0.1
requests>=2.28
package[extra]==1.0
pytest ; python_version > '3'

-r extra.txt
NumPy
`

	d := &Delta{}
	parseRequirements([]byte(src), d)

	wantDeps := map[string]string{
		"flask":    "2.0.1",
		"requests": "2.28",
		"package":  "1.0",
		"pytest":   "",
		"numpy":    "",
	}
	if !reflect.DeepEqual(d.Dependencies, wantDeps) {
		t.Errorf("Dependencies = %v, want %v", d.Dependencies, wantDeps)
	}
	if !hasString(d.Frameworks, "Flask") {
		t.Errorf("Frameworks = %v, want Flask", d.Frameworks)
	}
}

func TestSplitRequirement(t *testing.T) {
	tests := []struct {
		line    string
		name    string
		version string
	}{
		{"flask==2.0.1", "flask", "2.0.1"},
		{"requests>=2.28", "requests", "2.28"},
		{"flask == 2.0", "flask", "2.0"},
		{"numpy", "numpy", ""},
		{"package[extra]==1.0", "package", "1.0"},
		{"pytest ; python_version > '3'", "pytest", ""},
		{"uvicorn~=0.23", "uvicorn", "0.23"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, version := splitRequirement(tt.line)
			if name != tt.name || version != tt.version {
				t.Errorf("splitRequirement(%q) = (%q, %q), want (%q, %q)",
					tt.line, name, version, tt.name, tt.version)
			}
		})
	}
}

func TestParsePyprojectToml_Poetry(t *testing.T) {
	src := `[tool.poetry]
name = "demo"

[tool.poetry.dependencies]
python = "^3.11"
django = "^4.2"
`

	d := &Delta{}
	parsePyprojectToml([]byte(src), d)

	if !hasString(d.Technologies, "Poetry") {
		t.Errorf("Technologies = %v, want Poetry", d.Technologies)
	}
	if !hasString(d.SetupInstructions, "poetry install") {
		t.Errorf("SetupInstructions = %v", d.SetupInstructions)
	}
	if _, ok := d.Dependencies["python"]; ok {
		t.Error("python interpreter constraint should not be a dependency")
	}
	if d.Dependencies["django"] != "^4.2" {
		t.Errorf("django = %q, want ^4.2", d.Dependencies["django"])
	}
	if !hasString(d.Frameworks, "Django") {
		t.Errorf("Frameworks = %v, want Django", d.Frameworks)
	}
}

func TestParsePyprojectToml_PEP621(t *testing.T) {
	src := `[project]
name = "demo"
dependencies = ["fastapi>=0.100", "uvicorn"]
`

	d := &Delta{}
	parsePyprojectToml([]byte(src), d)

	if d.Dependencies["fastapi"] != "0.100" {
		t.Errorf("fastapi = %q, want 0.100", d.Dependencies["fastapi"])
	}
	if _, ok := d.Dependencies["uvicorn"]; !ok {
		t.Errorf("Dependencies = %v, want uvicorn", d.Dependencies)
	}
	if !hasString(d.SetupInstructions, "pip install -e .") {
		t.Errorf("SetupInstructions = %v", d.SetupInstructions)
	}
	if !hasString(d.Frameworks, "FastAPI") {
		t.Errorf("Frameworks = %v, want FastAPI", d.Frameworks)
	}
}

func TestParseDockerCompose(t *testing.T) {
	src := `services:
  db:
    image: postgres:16
  cache:
    image: redis:7-alpine
  app:
    build: .
`

	d := &Delta{}
	parseDockerCompose([]byte(src), d)

	for _, tech := range []string{"Docker", "Docker Compose", "PostgreSQL", "Redis"} {
		if !hasString(d.Technologies, tech) {
			t.Errorf("Technologies = %v, want to contain %q", d.Technologies, tech)
		}
	}
}

func TestParseGemfile(t *testing.T) {
	src := `source "https://rubygems.org"

gem "rails", "~> 7.1"
gem 'puma'
`

	d := &Delta{}
	parseGemfile([]byte(src), d)

	if _, ok := d.Dependencies["rails"]; !ok {
		t.Errorf("Dependencies = %v, want rails", d.Dependencies)
	}
	if _, ok := d.Dependencies["puma"]; !ok {
		t.Errorf("Dependencies = %v, want puma", d.Dependencies)
	}
	if !hasString(d.Frameworks, "Rails") {
		t.Errorf("Frameworks = %v, want Rails", d.Frameworks)
	}
}

func TestParseComposerJSON(t *testing.T) {
	src := `{"require": {"php": "^8.1", "laravel/framework": "^10.0"}}`

	d := &Delta{}
	parseComposerJSON([]byte(src), d)

	if _, ok := d.Dependencies["php"]; ok {
		t.Error("php platform requirement should not be a dependency")
	}
	if d.Dependencies["laravel/framework"] != "^10.0" {
		t.Errorf("laravel/framework = %q", d.Dependencies["laravel/framework"])
	}
	if !hasString(d.Frameworks, "Laravel") {
		t.Errorf("Frameworks = %v, want Laravel", d.Frameworks)
	}
}

func TestCIManifests(t *testing.T) {
	tests := []struct {
		file string
		tech string
	}{
		{".gitlab-ci.yml", "GitLab CI"},
		{".travis.yml", "Travis CI"},
		{"Jenkinsfile", "Jenkins"},
		{"azure-pipelines.yml", "Azure Pipelines"},
		{"bitbucket-pipelines.yml", "Bitbucket Pipelines"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			d := Classify(textFile(tt.file, "stages: [build]"))
			if !d.HasCIHint {
				t.Error("HasCIHint = false, want true")
			}
			if !d.IsConfigFile {
				t.Error("IsConfigFile = false, want true")
			}
			if !hasString(d.Technologies, tt.tech) {
				t.Errorf("Technologies = %v, want %q", d.Technologies, tt.tech)
			}
		})
	}
}
