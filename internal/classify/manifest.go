package classify

import (
	"encoding/json"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// manifestHandlers deep-parse well-known manifest files. Every handler
// tolerates malformed or truncated content: the manifest still classifies
// as a config file with its base technologies, just without extracted
// dependencies or commands.
var manifestHandlers = map[string]func(sample []byte, d *Delta){
	"package.json":            parsePackageJSON,
	"Cargo.toml":              parseCargoToml,
	"go.mod":                  parseGoMod,
	"requirements.txt":        parseRequirements,
	"pyproject.toml":          parsePyprojectToml,
	"Pipfile":                 parsePipfile,
	"pom.xml":                 parsePomXML,
	"build.gradle":            parseGradle,
	"build.gradle.kts":        parseGradle,
	"composer.json":           parseComposerJSON,
	"Gemfile":                 parseGemfile,
	"Dockerfile":              parseDockerfile,
	"docker-compose.yml":      parseDockerCompose,
	"docker-compose.yaml":     parseDockerCompose,
	"compose.yml":             parseDockerCompose,
	"compose.yaml":            parseDockerCompose,
	"Makefile":                parseMakefile,
	"tsconfig.json":           parseTSConfig,
	".gitlab-ci.yml":          ciHandler("GitLab CI"),
	".travis.yml":             ciHandler("Travis CI"),
	"Jenkinsfile":             ciHandler("Jenkins"),
	"azure-pipelines.yml":     ciHandler("Azure Pipelines"),
	"bitbucket-pipelines.yml": ciHandler("Bitbucket Pipelines"),
}

// dependencyFrameworks maps well-known dependency names to the framework
// they imply, across ecosystems.
var dependencyFrameworks = map[string]string{
	"react":                       "React",
	"vue":                         "Vue.js",
	"@angular/core":               "Angular",
	"svelte":                      "Svelte",
	"next":                        "Next.js",
	"express":                     "Express",
	"electron":                    "Electron",
	"jest":                        "Jest",
	"tailwindcss":                 "Tailwind CSS",
	"bootstrap":                   "Bootstrap",
	"jquery":                      "jQuery",
	"django":                      "Django",
	"flask":                       "Flask",
	"fastapi":                     "FastAPI",
	"pytest":                      "pytest",
	"rails":                       "Rails",
	"laravel/framework":           "Laravel",
	"actix-web":                   "Actix",
	"axum":                        "Axum",
	"github.com/gin-gonic/gin":    "Gin",
	"github.com/labstack/echo/v4": "Echo",
}

func (d *Delta) addTech(names ...string) {
	d.Technologies = append(d.Technologies, names...)
}

func (d *Delta) addDep(name, version string) {
	if name == "" {
		return
	}
	if d.Dependencies == nil {
		d.Dependencies = make(map[string]string)
	}
	d.Dependencies[name] = version
	if fw, ok := dependencyFrameworks[name]; ok {
		d.Frameworks = append(d.Frameworks, fw)
	}
}

func ciHandler(tech string) func(sample []byte, d *Delta) {
	return func(_ []byte, d *Delta) {
		d.addTech(tech)
		d.HasCIHint = true
	}
}

func parsePackageJSON(sample []byte, d *Delta) {
	d.addTech("Node.js", "npm")

	var pkg struct {
		Scripts         map[string]string `json:"scripts"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(sample, &pkg); err != nil {
		return
	}

	for name, version := range pkg.Dependencies {
		d.addDep(name, version)
	}
	for name, version := range pkg.DevDependencies {
		d.addDep(name, version)
	}

	d.SetupInstructions = append(d.SetupInstructions, "npm install")
	if _, ok := pkg.Scripts["start"]; ok {
		d.RunCommands = append(d.RunCommands, "npm start")
	}
	if _, ok := pkg.Scripts["dev"]; ok {
		d.RunCommands = append(d.RunCommands, "npm run dev")
	}
}

func parseCargoToml(sample []byte, d *Delta) {
	d.addTech("Rust", "Cargo")
	d.SetupInstructions = append(d.SetupInstructions, "cargo build")
	d.RunCommands = append(d.RunCommands, "cargo run")

	var manifest struct {
		Dependencies map[string]interface{} `toml:"dependencies"`
	}
	if err := toml.Unmarshal(sample, &manifest); err != nil {
		return
	}
	for name, raw := range manifest.Dependencies {
		d.addDep(name, tomlDepVersion(raw))
	}
}

// tomlDepVersion extracts a version from either the short form
// (name = "1.0") or the table form (name = { version = "1.0", ... }).
func tomlDepVersion(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		if version, ok := v["version"].(string); ok {
			return version
		}
	}
	return ""
}

func parseGoMod(sample []byte, d *Delta) {
	d.addTech("Go modules")
	d.SetupInstructions = append(d.SetupInstructions, "go mod download")
	d.RunCommands = append(d.RunCommands, "go run .")

	inRequire := false
	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "require ("):
			inRequire = true
		case inRequire && line == ")":
			inRequire = false
		case inRequire, strings.HasPrefix(line, "require "):
			entry := strings.TrimPrefix(line, "require ")
			if i := strings.Index(entry, "//"); i >= 0 {
				entry = entry[:i]
			}
			fields := strings.Fields(entry)
			if len(fields) == 2 {
				d.addDep(fields[0], fields[1])
			}
		}
	}
}

func parseRequirements(sample []byte, d *Delta) {
	d.addTech("Python", "pip")
	d.SetupInstructions = append(d.SetupInstructions, "pip install -r requirements.txt")

	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := splitRequirement(line)
		d.addDep(strings.ToLower(name), version)
	}
}

// splitRequirement splits a PEP 508 requirement line into name and the
// remaining version constraint, ignoring extras and environment markers.
func splitRequirement(line string) (string, string) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	i := strings.IndexAny(line, "=><~![ ")
	if i < 0 {
		return line, ""
	}
	name := line[:i]
	rest := line[i:]
	if j := strings.IndexAny(rest, "=><~"); j >= 0 {
		return name, strings.TrimLeft(rest[j:], "=><~! ")
	}
	return name, ""
}

func parsePyprojectToml(sample []byte, d *Delta) {
	d.addTech("Python", "pip")

	var manifest struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(sample, &manifest); err != nil {
		d.SetupInstructions = append(d.SetupInstructions, "pip install -e .")
		return
	}

	if len(manifest.Tool.Poetry.Dependencies) > 0 {
		d.addTech("Poetry")
		d.SetupInstructions = append(d.SetupInstructions, "poetry install")
		for name, raw := range manifest.Tool.Poetry.Dependencies {
			if strings.EqualFold(name, "python") {
				continue
			}
			d.addDep(strings.ToLower(name), tomlDepVersion(raw))
		}
		return
	}

	d.SetupInstructions = append(d.SetupInstructions, "pip install -e .")
	for _, req := range manifest.Project.Dependencies {
		name, version := splitRequirement(strings.TrimSpace(req))
		d.addDep(strings.ToLower(name), version)
	}
}

func parsePipfile(sample []byte, d *Delta) {
	d.addTech("Python", "Pipenv")
	d.SetupInstructions = append(d.SetupInstructions, "pipenv install")

	var manifest struct {
		Packages    map[string]interface{} `toml:"packages"`
		DevPackages map[string]interface{} `toml:"dev-packages"`
	}
	if err := toml.Unmarshal(sample, &manifest); err != nil {
		return
	}
	for name, raw := range manifest.Packages {
		d.addDep(strings.ToLower(name), tomlDepVersion(raw))
	}
	for name, raw := range manifest.DevPackages {
		d.addDep(strings.ToLower(name), tomlDepVersion(raw))
	}
}

func parsePomXML(_ []byte, d *Delta) {
	d.addTech("Java", "Maven")
	d.SetupInstructions = append(d.SetupInstructions, "mvn install")
}

func parseGradle(_ []byte, d *Delta) {
	d.addTech("Java", "Gradle")
	d.SetupInstructions = append(d.SetupInstructions, "gradle build")
}

func parseComposerJSON(sample []byte, d *Delta) {
	d.addTech("PHP", "Composer")
	d.SetupInstructions = append(d.SetupInstructions, "composer install")

	var manifest struct {
		Require map[string]string `json:"require"`
	}
	if err := json.Unmarshal(sample, &manifest); err != nil {
		return
	}
	for name, version := range manifest.Require {
		if name == "php" {
			continue
		}
		d.addDep(name, version)
	}
}

func parseGemfile(sample []byte, d *Delta) {
	d.addTech("Ruby", "Bundler")
	d.SetupInstructions = append(d.SetupInstructions, "bundle install")

	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "gem ") {
			continue
		}
		if name := firstQuoted(line); name != "" {
			d.addDep(name, "")
		}
	}
}

// firstQuoted returns the first single- or double-quoted token in line.
func firstQuoted(line string) string {
	for _, quote := range []byte{'\'', '"'} {
		start := strings.IndexByte(line, quote)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(line[start+1:], quote)
		if end < 0 {
			continue
		}
		return line[start+1 : start+1+end]
	}
	return ""
}

func parseDockerfile(_ []byte, d *Delta) {
	d.addTech("Docker")
}

// composeImageTechs maps service image substrings to backing technologies.
var composeImageTechs = []struct {
	substr string
	tech   string
}{
	{"postgres", "PostgreSQL"},
	{"mysql", "MySQL"},
	{"mariadb", "MariaDB"},
	{"redis", "Redis"},
	{"mongo", "MongoDB"},
	{"rabbitmq", "RabbitMQ"},
	{"kafka", "Kafka"},
	{"nginx", "Nginx"},
	{"elasticsearch", "Elasticsearch"},
	{"memcached", "Memcached"},
	{"minio", "MinIO"},
}

func parseDockerCompose(sample []byte, d *Delta) {
	d.addTech("Docker", "Docker Compose")

	var compose struct {
		Services map[string]struct {
			Image string `yaml:"image"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(sample, &compose); err != nil {
		return
	}
	for _, svc := range compose.Services {
		image := strings.ToLower(svc.Image)
		if image == "" {
			continue
		}
		for _, m := range composeImageTechs {
			if strings.Contains(image, m.substr) {
				d.addTech(m.tech)
			}
		}
	}
}

func parseMakefile(_ []byte, d *Delta) {
	d.addTech("Make")
}

func parseTSConfig(_ []byte, d *Delta) {
	d.addTech("TypeScript")
}
