package client

import (
	"context"
	"fmt"

	"crev/internal/config"
	"crev/internal/ratelimit"
)

// New creates the client for the configured provider.
func New(ctx context.Context, cfg *config.Config, limiter *ratelimit.Limiter) (Client, error) {
	switch cfg.API.ActiveProvider() {
	case "gemini":
		return NewGeminiClient(ctx, cfg, limiter)
	case "ollama":
		return NewOllamaClient(cfg, limiter)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.API.ActiveProvider())
	}
}
