package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)
	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "crev", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "crev", "config.yaml")
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if key := os.Getenv("CREV_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	}

	if provider := os.Getenv("CREV_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if model := os.Getenv("CREV_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if url := os.Getenv("OLLAMA_HOST"); url != "" {
		cfg.API.OllamaBaseURL = url
	}
	if level := os.Getenv("CREV_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.ActiveProvider() == "gemini" && c.API.ActiveKey() == "" {
		return ErrMissingAuth
	}
	if c.Review.MaxToolCalls <= 0 {
		return ConfigError("review.max_tool_calls must be positive")
	}
	if c.Review.MaxFilesRead <= 0 {
		return ConfigError("review.max_files_read must be positive")
	}
	if c.Review.MaxDuration <= 0 {
		return ConfigError("review.max_duration must be positive")
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth ConfigError = "missing authentication: set GEMINI_API_KEY or CREV_API_KEY environment variable"
)

// SessionDir returns the directory for persisted sessions, creating a
// default under the user config dir when unset.
func (c *Config) SessionDir() string {
	if c.Session.Dir != "" {
		return c.Session.Dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crev", "sessions")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "crev-sessions")
	}
	return filepath.Join(homeDir, ".config", "crev", "sessions")
}
