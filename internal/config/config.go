// Package config provides YAML-based configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration document
type AppConfig struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Upload      UploadConfig      `yaml:"upload" envPrefix:"UPLOAD_"`
	Interpreter InterpreterConfig `yaml:"interpreter" envPrefix:"INTERPRETER_"`
	LLM         LLMConfig         `yaml:"llm" envPrefix:"LLM_"`
	Session     SessionConfig     `yaml:"session" envPrefix:"SESSION_"`
	Logging     LoggingConfig     `yaml:"logging" envPrefix:"LOG_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                int    `yaml:"port" env:"PORT"`
	BindAddress         string `yaml:"bind_address" env:"BIND_ADDRESS"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" env:"READ_TIMEOUT_SECONDS"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" env:"WRITE_TIMEOUT_SECONDS"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds" env:"IDLE_TIMEOUT_SECONDS"`
	BodyLimit           string `yaml:"body_limit" env:"BODY_LIMIT"`
	EnableCompression   bool   `yaml:"enable_compression" env:"ENABLE_COMPRESSION"`
	CompressionLevel    int    `yaml:"compression_level" env:"COMPRESSION_LEVEL"`
	CookieName          string `yaml:"cookie_name" env:"COOKIE_NAME"`
}

// UploadConfig limits what the upload control accepts
type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes" env:"MAX_SIZE_BYTES"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
}

// InterpreterConfig tunes how uploads are summarized
type InterpreterConfig struct {
	SQLEngine                string `yaml:"sql_engine" env:"SQL_ENGINE"` // "sqlite" or "duckdb"
	SampleRows               int    `yaml:"sample_rows" env:"SAMPLE_ROWS"`
	SQLSnapshotEachStatement bool   `yaml:"sql_snapshot_each_statement" env:"SQL_SNAPSHOT_EACH_STATEMENT"`
	JSONLines                bool   `yaml:"json_lines" env:"JSON_LINES"`
	DuckDBThreads            int    `yaml:"duckdb_threads" env:"DUCKDB_THREADS"`
	DuckDBMemoryLimit        string `yaml:"duckdb_memory_limit" env:"DUCKDB_MEMORY_LIMIT"`
}

// LLMConfig selects the hosted model
type LLMConfig struct {
	Provider              string `yaml:"provider" env:"PROVIDER"`
	Model                 string `yaml:"model" env:"MODEL"` // empty picks the provider's default
	BaseURL               string `yaml:"base_url" env:"BASE_URL"`
	MaxTokens             int    `yaml:"max_tokens" env:"MAX_TOKENS"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
}

// SessionConfig controls the in-memory session registry
type SessionConfig struct {
	IdleTimeoutMinutes     int `yaml:"idle_timeout_minutes" env:"IDLE_TIMEOUT_MINUTES"` // 0 keeps sessions until restart
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes" env:"CLEANUP_INTERVAL_MINUTES"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level          string `yaml:"level" env:"LEVEL"`
	Development    bool   `yaml:"development" env:"DEVELOPMENT"`
	RequestLogging bool   `yaml:"request_logging" env:"REQUEST_LOGGING"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                8501,
			BindAddress:         "0.0.0.0",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
			IdleTimeoutSeconds:  120,
			BodyLimit:           "64M",
			EnableCompression:   true,
			CompressionLevel:    5,
			CookieName:          "dbqa_session",
		},
		Upload: UploadConfig{
			MaxSizeBytes:      32 << 20,
			AllowedExtensions: []string{".sql", ".json", ".csv"},
		},
		Interpreter: InterpreterConfig{
			SQLEngine:         "sqlite",
			SampleRows:        5,
			DuckDBThreads:     2,
			DuckDBMemoryLimit: "512MB",
		},
		LLM: LLMConfig{
			Provider:  "gemini",
			MaxTokens: 1024,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:     0,
			CleanupIntervalMinutes: 5,
		},
		Logging: LoggingConfig{
			Level:          "info",
			RequestLogging: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating it with
// defaults on first run, then applies .env and environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is normal outside local development
	_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Database Query Assistant configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets DBQA_* variables override file values
func (c *AppConfig) applyEnvironmentOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "DBQA_"}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	// PORT is honored unprefixed for container platforms
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			c.Server.Port = p
		}
	}
	return nil
}

func (c *AppConfig) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Interpreter.SQLEngine = strings.ToLower(strings.TrimSpace(c.Interpreter.SQLEngine))
	if c.Interpreter.SQLEngine == "" {
		c.Interpreter.SQLEngine = "sqlite"
	}
	for i, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.AllowedExtensions[i] = ext
	}
}

// Validate checks values that would otherwise fail later at runtime
func (c *AppConfig) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Interpreter.SQLEngine {
	case "duckdb", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("interpreter.sql_engine must be duckdb or sqlite, got %q", c.Interpreter.SQLEngine))
	}
	if c.Interpreter.SampleRows <= 0 {
		problems = append(problems, "interpreter.sample_rows must be positive")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		problems = append(problems, "upload.max_size_bytes must be positive")
	}
	if c.LLM.Provider == "" {
		problems = append(problems, "llm.provider is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RequestTimeout returns the model call timeout, zero meaning none.
func (c *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// IdleTimeout returns how long an untouched session is kept, zero meaning forever.
func (c *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired sessions are purged.
func (c *SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}
