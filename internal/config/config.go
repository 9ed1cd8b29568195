package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Model     ModelConfig     `yaml:"model"`
	Review    ReviewConfig    `yaml:"review"`
	Index     IndexConfig     `yaml:"index"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Service   ServiceConfig   `yaml:"service"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds API-related settings.
type APIConfig struct {
	GeminiKey string `yaml:"gemini_key,omitempty"`
	OllamaKey string `yaml:"ollama_key,omitempty"` // for remote Ollama servers with auth

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	// Active provider: gemini, ollama (default: gemini)
	Provider string `yaml:"provider"`

	Retry RetryConfig `yaml:"retry"`
}

// ActiveProvider returns the configured provider name.
func (c *APIConfig) ActiveProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	return "gemini"
}

// ActiveKey returns the API key for the active provider. Ollama does not
// require a key for local servers.
func (c *APIConfig) ActiveKey() string {
	switch c.ActiveProvider() {
	case "ollama":
		return c.OllamaKey
	default:
		return c.GeminiKey
	}
}

// RetryConfig holds retry settings for API calls.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// ModelConfig holds model-related settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// ReviewConfig bounds a single review's exploration.
type ReviewConfig struct {
	MaxToolCalls int           `yaml:"max_tool_calls"` // navigation calls per review
	MaxDuration  time.Duration `yaml:"max_duration"`   // wall clock per review
	MaxFilesRead int           `yaml:"max_files_read"` // distinct files read per review
	MaxFileBytes int           `yaml:"max_file_bytes"` // per read_file result
}

// IndexConfig holds indexer settings.
type IndexConfig struct {
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// SessionConfig holds review session persistence settings.
type SessionConfig struct {
	Dir        string        `yaml:"dir"` // defaults under the user config dir
	MaxHistory int           `yaml:"max_history"`
	PruneAfter time.Duration `yaml:"prune_after"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Tier        string         `yaml:"tier"`
	WaitCeiling time.Duration  `yaml:"wait_ceiling"`
	Overrides   map[string]int `yaml:"overrides,omitempty"` // model prefix to RPM limit
}

// ServiceConfig holds the HTTP service settings.
type ServiceConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WatcherConfig holds filesystem watcher settings.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Dir, when set, redirects service-mode logs to a file in that
	// directory instead of stderr.
	Dir string `yaml:"dir,omitempty"`
}
