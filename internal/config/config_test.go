package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Check version
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}

	// Check walker defaults
	if cfg.Walker.MaxFileSizeBytes != 2*1024*1024 {
		t.Errorf("Walker.MaxFileSizeBytes = %d, want %d", cfg.Walker.MaxFileSizeBytes, 2*1024*1024)
	}
	if cfg.Walker.MaxFiles != 5000 {
		t.Errorf("Walker.MaxFiles = %d, want 5000", cfg.Walker.MaxFiles)
	}
	if cfg.Walker.MaxDepth != 6 {
		t.Errorf("Walker.MaxDepth = %d, want 6", cfg.Walker.MaxDepth)
	}
	if !cfg.Walker.SkipHiddenDirs {
		t.Error("SkipHiddenDirs should be true by default")
	}

	// Check standard exclusions are present
	wantExcluded := []string{"node_modules", ".git", "dist", "build", "__pycache__"}
	excluded := make(map[string]bool)
	for _, d := range cfg.Walker.ExcludeDirs {
		excluded[d] = true
	}
	for _, d := range wantExcluded {
		if !excluded[d] {
			t.Errorf("ExcludeDirs should include %q", d)
		}
	}

	// Check analysis defaults
	if cfg.Analysis.ChunkSize != 1000 {
		t.Errorf("Analysis.ChunkSize = %d, want 1000", cfg.Analysis.ChunkSize)
	}
	if cfg.Analysis.FreshnessHours != 24 {
		t.Errorf("Analysis.FreshnessHours = %d, want 24", cfg.Analysis.FreshnessHours)
	}
	if cfg.Analysis.ChunkBudgetMs <= 0 {
		t.Error("ChunkBudgetMs should be positive")
	}

	// Check remote analyzer defaults
	if !cfg.Remote.Enabled {
		t.Error("Remote analyzer should be enabled by default")
	}
	if cfg.Remote.TimeoutMs != 30000 {
		t.Errorf("Remote.TimeoutMs = %d, want 30000", cfg.Remote.TimeoutMs)
	}

	// Check server defaults
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "localhost")
	}
	if cfg.Server.Port != 5001 {
		t.Errorf("Server.Port = %d, want 5001", cfg.Server.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"version 0 unsupported", func(c *Config) { c.Version = 0 }, true},
		{"version 2 unsupported", func(c *Config) { c.Version = 2 }, true},
		{"zero file size cap", func(c *Config) { c.Walker.MaxFileSizeBytes = 0 }, true},
		{"zero chunk size", func(c *Config) { c.Analysis.ChunkSize = 0 }, true},
		{"negative freshness", func(c *Config) { c.Analysis.FreshnessHours = -1 }, true},
		{"zero freshness allowed", func(c *Config) { c.Analysis.FreshnessHours = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr && err == nil {
				t.Error("Validate() should return error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() returned unexpected error: %v", err)
			}

			// Check error type
			if err != nil {
				if _, ok := err.(*ConfigError); !ok {
					t.Errorf("Validate() error type = %T, want *ConfigError", err)
				}
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{
		Field:   "version",
		Message: "unsupported config version",
	}

	got := err.Error()
	want := "config error in field 'version': unsupported config version"

	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Default(t *testing.T) {
	// Create a temp directory without config
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// Should return default config when no config file exists
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1 (default)", cfg.Version)
	}
	if cfg.Analysis.ChunkSize != 1000 {
		t.Errorf("Analysis.ChunkSize = %d, want default 1000", cfg.Analysis.ChunkSize)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	// Create a temp directory with config
	tmpDir := t.TempDir()
	wsDir := filepath.Join(tmpDir, ".leviatan")
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("Failed to create .leviatan dir: %v", err)
	}

	configContent := `{
		"version": 1,
		"projectRoot": ".",
		"walker": {
			"maxFileSizeBytes": 1048576,
			"maxFiles": 200
		},
		"analysis": {
			"chunkSize": 50,
			"freshnessHours": 6
		},
		"remote": {
			"enabled": false
		}
	}`

	configPath := filepath.Join(wsDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// Check custom values were loaded
	if cfg.Walker.MaxFileSizeBytes != 1048576 {
		t.Errorf("Walker.MaxFileSizeBytes = %d, want 1048576", cfg.Walker.MaxFileSizeBytes)
	}
	if cfg.Walker.MaxFiles != 200 {
		t.Errorf("Walker.MaxFiles = %d, want 200", cfg.Walker.MaxFiles)
	}
	if cfg.Analysis.ChunkSize != 50 {
		t.Errorf("Analysis.ChunkSize = %d, want 50", cfg.Analysis.ChunkSize)
	}
	if cfg.Analysis.FreshnessHours != 6 {
		t.Errorf("Analysis.FreshnessHours = %d, want 6", cfg.Analysis.FreshnessHours)
	}
	if cfg.Remote.Enabled {
		t.Error("Remote should be disabled per config")
	}

	// Fields absent from the file keep their defaults
	if cfg.Analysis.ChunkBudgetMs != 10000 {
		t.Errorf("Analysis.ChunkBudgetMs = %d, want default 10000", cfg.Analysis.ChunkBudgetMs)
	}
	if cfg.Server.Port != 5001 {
		t.Errorf("Server.Port = %d, want default 5001", cfg.Server.Port)
	}
}

func TestConfig_Save(t *testing.T) {
	// Create a temp directory
	tmpDir := t.TempDir()
	wsDir := filepath.Join(tmpDir, ".leviatan")
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("Failed to create .leviatan dir: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Analysis.ChunkSize = 42

	err := cfg.Save(tmpDir)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Verify file was created
	configPath := filepath.Join(wsDir, "config.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	// Load it back and verify
	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() after save error = %v", err)
	}

	if loaded.Analysis.ChunkSize != 42 {
		t.Errorf("Loaded Analysis.ChunkSize = %d, want 42", loaded.Analysis.ChunkSize)
	}
}
