package config

import (
	"fmt"
	"time"
)

// Config represents the complete Probe configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	AI         AIConfig         `yaml:"ai"`
	Browser    BrowserConfig    `yaml:"browser"`
	Runner     RunnerConfig     `yaml:"runner"`
	Retry      RetryConfig      `yaml:"retry"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Meta       MetaConfig       `yaml:"meta"`
}

// ServerConfig holds the HTTP/WebSocket server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Provider string                 `yaml:"provider"` // openai, anthropic, mock
	APIKey   string                 `yaml:"api_key"`
	Model    string                 `yaml:"model"`
	Endpoint string                 `yaml:"endpoint,omitempty"` // for custom gateways
	Settings map[string]interface{} `yaml:"settings,omitempty"`
}

// BrowserConfig holds page extraction configuration
type BrowserConfig struct {
	Headless    bool          `yaml:"headless"`
	Timeout     time.Duration `yaml:"timeout"`      // per-page navigation budget
	UserAgent   string        `yaml:"user_agent,omitempty"`
	ChromeFlags []string      `yaml:"chrome_flags,omitempty"`
}

// RunnerConfig holds test execution configuration
type RunnerConfig struct {
	Command string        `yaml:"command"`  // how to run a generated test file
	WorkDir string        `yaml:"work_dir"` // where test files are written before execution
	Timeout time.Duration `yaml:"timeout"`  // per-test execution budget
}

// RetryConfig bounds the automatic fix loop
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// EmbeddingsConfig holds page content indexing configuration
type EmbeddingsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`       // persistent store directory, empty = in-memory
	ChunkSize int    `yaml:"chunk_size"` // characters per indexed chunk
	TopK      int    `yaml:"top_k"`      // chunks returned per context query
}

// SessionsConfig holds session persistence configuration
type SessionsConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`    // sqlite database file
}

// PromptsConfig holds prompt template configuration
type PromptsConfig struct {
	Dir    string `yaml:"dir,omitempty"` // override directory, empty = embedded defaults
	Reload bool   `yaml:"reload"`        // watch the override directory for edits
}

// MetaConfig holds metadata about the configuration
type MetaConfig struct {
	Version   string    `yaml:"version"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// DefaultConfig returns a new config with sensible defaults
func DefaultConfig() *Config {
	now := time.Now()
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		AI: AIConfig{
			Provider: "openai",
			Model:    "gpt-4-turbo",
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Runner: RunnerConfig{
			Command: "python -m pytest -v --tb=short",
			WorkDir: ".probe/tests",
			Timeout: 2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
		},
		Embeddings: EmbeddingsConfig{
			Enabled:   true,
			ChunkSize: 1000,
			TopK:      4,
		},
		Sessions: SessionsConfig{
			Backend: "memory",
			Path:    ".probe/sessions.db",
		},
		Meta: MetaConfig{
			Version:   "1.0.0",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.AI.Provider == "" {
		return NewValidationError("ai.provider is required")
	}

	if c.AI.APIKey == "" && c.AI.Provider != "mock" {
		return NewValidationError("ai.api_key is required for provider: " + c.AI.Provider)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewValidationError("server.port must be between 1 and 65535")
	}

	if c.Retry.MaxAttempts < 1 {
		return NewValidationError("retry.max_attempts must be at least 1")
	}

	switch c.Sessions.Backend {
	case "memory", "sqlite":
	default:
		return NewValidationError("sessions.backend must be memory or sqlite, got: " + c.Sessions.Backend)
	}

	if c.Sessions.Backend == "sqlite" && c.Sessions.Path == "" {
		return NewValidationError("sessions.path is required for the sqlite backend")
	}

	if c.Runner.Command == "" {
		return NewValidationError("runner.command is required")
	}

	return nil
}

// ListenAddr returns the host:port the server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Message
}

// NewValidationError creates a new validation error
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}
