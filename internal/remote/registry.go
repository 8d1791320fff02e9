package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"leviatan/internal/paths"
)

// Registry is the set of configured deep-analysis services, stored as
// analyzers.toml in the project workspace directory.
type Registry struct {
	Analyzers []AnalyzerConfig `toml:"analyzers"`
}

// AnalyzerConfig is one registry entry.
type AnalyzerConfig struct {
	Name           string    `toml:"name"`
	URL            string    `toml:"url"`
	TimeoutSeconds int       `toml:"timeout_seconds,omitempty"`
	Token          string    `toml:"token,omitempty"`
	Enabled        bool      `toml:"enabled"`
	AddedAt        time.Time `toml:"added_at"`
}

// Timeout returns the configured per-call timeout, defaulting to 30s.
func (c AnalyzerConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoadRegistry reads the registry for a project. A missing file is an
// empty registry, not an error.
func LoadRegistry(projectRoot string) (*Registry, error) {
	path := paths.AnalyzersPath(projectRoot)

	var reg Registry
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		if os.IsNotExist(err) {
			return &Registry{}, nil
		}
		return nil, fmt.Errorf("failed to parse analyzers registry: %w", err)
	}
	return &reg, nil
}

// Save writes the registry back to the project workspace directory.
func (r *Registry) Save(projectRoot string) error {
	path := paths.AnalyzersPath(projectRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create registry file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(r); err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	return nil
}

// Add registers a new analyzer. Names and URLs must be unique.
func (r *Registry) Add(name, serviceURL string, timeoutSeconds int) (*AnalyzerConfig, error) {
	for _, a := range r.Analyzers {
		if a.Name == name {
			return nil, fmt.Errorf("analyzer %q already exists", name)
		}
		if a.URL == serviceURL {
			return nil, fmt.Errorf("analyzer at %q already exists (as %q)", serviceURL, a.Name)
		}
	}

	cfg := AnalyzerConfig{
		Name:           name,
		URL:            serviceURL,
		TimeoutSeconds: timeoutSeconds,
		Enabled:        true,
		AddedAt:        time.Now().UTC(),
	}
	r.Analyzers = append(r.Analyzers, cfg)
	return &cfg, nil
}

// Remove drops an analyzer by name.
func (r *Registry) Remove(name string) error {
	for i, a := range r.Analyzers {
		if a.Name == name {
			r.Analyzers = append(r.Analyzers[:i], r.Analyzers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("analyzer %q not found", name)
}

// SetEnabled toggles an analyzer by name.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	for i := range r.Analyzers {
		if r.Analyzers[i].Name == name {
			r.Analyzers[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("analyzer %q not found", name)
}

// EnabledAnalyzers returns the entries the analysis pipeline may try, in
// registry order.
func (r *Registry) EnabledAnalyzers() []AnalyzerConfig {
	var out []AnalyzerConfig
	for _, a := range r.Analyzers {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}
