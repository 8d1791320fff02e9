package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete leviatan configuration (v1 schema)
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot"`

	Walker    WalkerConfig    `json:"walker" mapstructure:"walker"`
	Analysis  AnalysisConfig  `json:"analysis" mapstructure:"analysis"`
	Remote    RemoteConfig    `json:"remote" mapstructure:"remote"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// WalkerConfig controls tree enumeration
type WalkerConfig struct {
	ExcludeDirs      []string `json:"excludeDirs" mapstructure:"excludeDirs"`
	ExcludeGlobs     []string `json:"excludeGlobs" mapstructure:"excludeGlobs"`
	SkipHiddenDirs   bool     `json:"skipHiddenDirs" mapstructure:"skipHiddenDirs"`
	UseGitignore     bool     `json:"useGitignore" mapstructure:"useGitignore"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	MaxFiles         int      `json:"maxFiles" mapstructure:"maxFiles"`
	MaxDepth         int      `json:"maxDepth" mapstructure:"maxDepth"`
	SampleSizeBytes  int      `json:"sampleSizeBytes" mapstructure:"sampleSizeBytes"`
}

// AnalysisConfig controls chunking and snapshot freshness
type AnalysisConfig struct {
	ChunkSize      int `json:"chunkSize" mapstructure:"chunkSize"`
	ChunkBudgetMs  int `json:"chunkBudgetMs" mapstructure:"chunkBudgetMs"`
	FreshnessHours int `json:"freshnessHours" mapstructure:"freshnessHours"`
}

// RemoteConfig controls the optional deep-analyzer client
type RemoteConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	TimeoutMs  int  `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxRetries int  `json:"maxRetries" mapstructure:"maxRetries"`
}

// ServerConfig contains the HTTP facade settings for serve mode
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// WatcherConfig controls serve-mode auto refresh
type WatcherConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	PollIntervalMs int  `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	DebounceMs     int  `json:"debounceMs" mapstructure:"debounceMs"`
}

// SchedulerConfig controls the periodic freshness sweep in serve mode
type SchedulerConfig struct {
	Enabled         bool `json:"enabled" mapstructure:"enabled"`
	CheckIntervalMs int  `json:"checkIntervalMs" mapstructure:"checkIntervalMs"`
	SweepMinutes    int  `json:"sweepMinutes" mapstructure:"sweepMinutes"`
}

// LoggingConfig contains logging configuration.
// Per-subsystem levels override Level when set.
type LoggingConfig struct {
	Level      string           `json:"level" mapstructure:"level"`
	Analysis   string           `json:"analysis,omitempty" mapstructure:"analysis"`
	Serve      string           `json:"serve,omitempty" mapstructure:"serve"`
	Session    string           `json:"session,omitempty" mapstructure:"session"`
	MaxSize    string           `json:"maxSize,omitempty" mapstructure:"maxSize"`
	MaxBackups int              `json:"maxBackups,omitempty" mapstructure:"maxBackups"`
	Loki       *RemoteLogConfig `json:"loki,omitempty" mapstructure:"loki"`
}

// RemoteLogConfig configures pushing logs to a Grafana Loki endpoint
type RemoteLogConfig struct {
	Endpoint      string            `json:"endpoint" mapstructure:"endpoint"`
	Labels        map[string]string `json:"labels,omitempty" mapstructure:"labels"`
	BatchSize     int               `json:"batchSize,omitempty" mapstructure:"batchSize"`
	FlushInterval string            `json:"flushInterval,omitempty" mapstructure:"flushInterval"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		ProjectRoot: ".",
		Walker: WalkerConfig{
			ExcludeDirs: []string{
				"node_modules", ".git", "dist", "build", "__pycache__",
				".next", "target", "venv", ".venv", "vendor",
			},
			ExcludeGlobs:     []string{},
			SkipHiddenDirs:   true,
			UseGitignore:     false,
			MaxFileSizeBytes: 2 * 1024 * 1024,
			MaxFiles:         5000,
			MaxDepth:         6,
			SampleSizeBytes:  64 * 1024,
		},
		Analysis: AnalysisConfig{
			ChunkSize:      1000,
			ChunkBudgetMs:  10000,
			FreshnessHours: 24,
		},
		Remote: RemoteConfig{
			Enabled:    true,
			TimeoutMs:  30000,
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 5001,
		},
		Watcher: WatcherConfig{
			Enabled:        true,
			PollIntervalMs: 2000,
			DebounceMs:     1500,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			CheckIntervalMs: 30000,
			SweepMinutes:    60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from .leviatan/config.json.
// A missing config file yields the defaults, never an error.
func LoadConfig(projectRoot string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("version", 1)
	v.SetDefault("projectRoot", ".")

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, ".leviatan"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Unmarshal into config struct, starting from defaults so partial
	// files keep the remaining defaults
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .leviatan/config.json
func (c *Config) Save(projectRoot string) error {
	configPath := filepath.Join(projectRoot, ".leviatan", "config.json")

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(configPath, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Walker.MaxFileSizeBytes <= 0 {
		return &ConfigError{Field: "walker.maxFileSizeBytes", Message: "must be positive"}
	}
	if c.Analysis.ChunkSize <= 0 {
		return &ConfigError{Field: "analysis.chunkSize", Message: "must be positive"}
	}
	if c.Analysis.FreshnessHours < 0 {
		return &ConfigError{Field: "analysis.freshnessHours", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
