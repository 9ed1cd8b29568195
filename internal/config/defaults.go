package config

import "time"

// Default configuration values.
const (
	DefaultModel           = "gemini-2.5-pro"
	DefaultTemperature     = 0.2
	DefaultMaxOutputTokens = 8192

	// Review exploration bounds
	DefaultMaxToolCalls = 30
	DefaultMaxDuration  = 10 * time.Minute
	DefaultMaxFilesRead = 20
	DefaultMaxFileBytes = 100_000

	// Retry settings
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultHTTPTimeout = 120 * time.Second

	// Session settings
	DefaultMaxSessionHistory = 100
	DefaultSessionPruneAfter = 30 * 24 * time.Hour

	// Rate limiting
	DefaultRateLimitTier = "tier1"
	DefaultWaitCeiling   = 30 * time.Second

	// Service settings
	DefaultServiceAddr     = "127.0.0.1:8321"
	DefaultShutdownTimeout = 10 * time.Second

	// Watcher settings
	DefaultWatchDebounce = 500 * time.Millisecond
)

// DefaultConfig returns the configuration used before any file or
// environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:      "gemini",
			OllamaBaseURL: "http://localhost:11434",
			Retry: RetryConfig{
				MaxRetries:  DefaultMaxRetries,
				RetryDelay:  DefaultRetryDelay,
				HTTPTimeout: DefaultHTTPTimeout,
			},
		},
		Model: ModelConfig{
			Name:            DefaultModel,
			Temperature:     DefaultTemperature,
			MaxOutputTokens: DefaultMaxOutputTokens,
		},
		Review: ReviewConfig{
			MaxToolCalls: DefaultMaxToolCalls,
			MaxDuration:  DefaultMaxDuration,
			MaxFilesRead: DefaultMaxFilesRead,
			MaxFileBytes: DefaultMaxFileBytes,
		},
		Session: SessionConfig{
			MaxHistory: DefaultMaxSessionHistory,
			PruneAfter: DefaultSessionPruneAfter,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Tier:        DefaultRateLimitTier,
			WaitCeiling: DefaultWaitCeiling,
		},
		Service: ServiceConfig{
			Addr:            DefaultServiceAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Watcher: WatcherConfig{
			Enabled:  true,
			Debounce: DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
