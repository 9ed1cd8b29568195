package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"crev/internal/config"
	"crev/internal/logging"
	"crev/internal/ratelimit"
)

// GeminiClient implements Client over the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	retry   RetryConfig
	limiter *ratelimit.Limiter

	mu                sync.RWMutex
	tools             []*genai.Tool
	systemInstruction string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, cfg *config.Config, limiter *ratelimit.Limiter) (*GeminiClient, error) {
	apiKey := cfg.API.ActiveKey()
	if apiKey == "" {
		return nil, config.ErrMissingAuth
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     Ptr(cfg.Model.Temperature),
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
	}

	retry := DefaultRetryConfig()
	if cfg.API.Retry.MaxRetries > 0 {
		retry.MaxRetries = cfg.API.Retry.MaxRetries
	}
	if cfg.API.Retry.RetryDelay > 0 {
		retry.RetryDelay = cfg.API.Retry.RetryDelay
	}

	return &GeminiClient{
		client:  client,
		model:   cfg.Model.Name,
		config:  genConfig,
		retry:   retry,
		limiter: limiter,
	}, nil
}

func (c *GeminiClient) SetTools(tools []*genai.Tool) {
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
}

func (c *GeminiClient) SetSystemInstruction(instruction string) {
	c.mu.Lock()
	c.systemInstruction = instruction
	c.mu.Unlock()
}

func (c *GeminiClient) GetModel() string {
	return c.model
}

func (c *GeminiClient) Close() error {
	return nil
}

func (c *GeminiClient) SendMessage(ctx context.Context, history []*genai.Content, message string) (*Response, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))
	return c.generate(ctx, contents)
}

func (c *GeminiClient) SendFunctionResponse(ctx context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*Response, error) {
	parts := make([]*genai.Part, 0, len(results))
	for _, result := range results {
		p := genai.NewPartFromFunctionResponse(result.Name, result.Response)
		p.FunctionResponse.ID = result.ID
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(" "))
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: parts,
	})
	return c.generate(ctx, contents)
}

// generate performs the request with rate limiting and retry.
func (c *GeminiClient) generate(ctx context.Context, contents []*genai.Content) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.model); err != nil {
			return nil, err
		}
	}

	cfg := *c.config
	c.mu.RLock()
	if c.systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.systemInstruction, genai.RoleUser)
	}
	if len(c.tools) > 0 {
		cfg.Tools = c.tools
	}
	c.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retry.RetryDelay, attempt-1, c.retry.MaxDelay)
			logging.Info("retrying Gemini request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &cfg)
		if err == nil {
			return parseResponse(resp), nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return nil, wrapUnreachable(err)
		}
		logging.Warn("Gemini request failed, will retry", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.retry.MaxRetries, wrapUnreachable(lastErr))
}

func parseResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.Thought {
				continue
			}
			if part.Text != "" {
				out.Text += part.Text
			}
			if part.FunctionCall != nil {
				out.FunctionCalls = append(out.FunctionCalls, part.FunctionCall)
			}
		}
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out
}
