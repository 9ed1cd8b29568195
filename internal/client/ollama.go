package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"

	"crev/internal/config"
	"crev/internal/logging"
	"crev/internal/ratelimit"
)

// OllamaClient implements Client against a local or remote Ollama server.
type OllamaClient struct {
	client  *api.Client
	model   string
	temp    float32
	maxTok  int32
	retry   RetryConfig
	limiter *ratelimit.Limiter

	mu                sync.RWMutex
	tools             []*genai.Tool
	systemInstruction string
}

// authTransport adds an Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

// NewOllamaClient creates an Ollama-backed client.
func NewOllamaClient(cfg *config.Config, limiter *ratelimit.Limiter) (*OllamaClient, error) {
	if cfg.Model.Name == "" {
		return nil, fmt.Errorf("model name is required for ollama")
	}

	baseURL, err := url.Parse(cfg.API.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	timeout := cfg.API.Retry.HTTPTimeout
	if timeout == 0 {
		timeout = config.DefaultHTTPTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.API.OllamaKey != "" {
		httpClient.Transport = &authTransport{
			base:   http.DefaultTransport,
			apiKey: cfg.API.OllamaKey,
		}
	}

	retry := DefaultRetryConfig()
	if cfg.API.Retry.MaxRetries > 0 {
		retry.MaxRetries = cfg.API.Retry.MaxRetries
	}
	if cfg.API.Retry.RetryDelay > 0 {
		retry.RetryDelay = cfg.API.Retry.RetryDelay
	}

	return &OllamaClient{
		client:  api.NewClient(baseURL, httpClient),
		model:   cfg.Model.Name,
		temp:    cfg.Model.Temperature,
		maxTok:  cfg.Model.MaxOutputTokens,
		retry:   retry,
		limiter: limiter,
	}, nil
}

func (c *OllamaClient) SetTools(tools []*genai.Tool) {
	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
}

func (c *OllamaClient) SetSystemInstruction(instruction string) {
	c.mu.Lock()
	c.systemInstruction = instruction
	c.mu.Unlock()
}

func (c *OllamaClient) GetModel() string {
	return c.model
}

func (c *OllamaClient) Close() error {
	return nil
}

func (c *OllamaClient) SendMessage(ctx context.Context, history []*genai.Content, message string) (*Response, error) {
	messages := c.convertHistory(history)
	if message != "" {
		messages = append(messages, api.Message{Role: "user", Content: message})
	}
	return c.chat(ctx, messages)
}

func (c *OllamaClient) SendFunctionResponse(ctx context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*Response, error) {
	messages := c.convertHistory(history)
	for _, result := range results {
		messages = append(messages, api.Message{
			Role:       "tool",
			Content:    functionResponseText(result),
			ToolName:   result.Name,
			ToolCallID: result.ID,
		})
	}
	return c.chat(ctx, messages)
}

func (c *OllamaClient) chat(ctx context.Context, messages []api.Message) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.model); err != nil {
			return nil, err
		}
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   Ptr(false),
		Options: map[string]any{
			"num_predict": c.maxTok,
		},
	}
	if c.temp > 0 {
		req.Options["temperature"] = c.temp
	}
	c.mu.RLock()
	if len(c.tools) > 0 {
		req.Tools = c.convertTools()
	}
	c.mu.RUnlock()

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retry.RetryDelay, attempt-1, c.retry.MaxDelay)
			logging.Info("retrying Ollama request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out := &Response{}
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			out.Text += resp.Message.Content
			for i, tc := range resp.Message.ToolCalls {
				out.FunctionCalls = append(out.FunctionCalls, ollamaToolCallToGenai(tc, i))
			}
			if resp.Done {
				out.InputTokens = int32(resp.PromptEvalCount)
				out.OutputTokens = int32(resp.EvalCount)
			}
			return nil
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return nil, wrapUnreachable(err)
		}
		logging.Warn("Ollama request failed, will retry", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.retry.MaxRetries, wrapUnreachable(lastErr))
}

// convertHistory maps genai contents to Ollama messages, prefixed by the
// system instruction when set.
func (c *OllamaClient) convertHistory(history []*genai.Content) []api.Message {
	messages := make([]api.Message, 0, len(history)+2)

	c.mu.RLock()
	sys := c.systemInstruction
	c.mu.RUnlock()
	if sys != "" {
		messages = append(messages, api.Message{Role: "system", Content: sys})
	}

	for _, content := range history {
		msg := api.Message{}
		switch content.Role {
		case genai.RoleUser:
			msg.Role = "user"
		case genai.RoleModel:
			msg.Role = "assistant"
		default:
			msg.Role = string(content.Role)
		}

		var textParts []string
		flush := func() {
			msg.Content = strings.Join(textParts, "\n")
			messages = appendNonEmpty(messages, msg)
			msg = api.Message{Role: msg.Role}
			textParts = nil
		}
		for _, part := range content.Parts {
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
			if part.FunctionCall != nil {
				msg.ToolCalls = append(msg.ToolCalls, genaiToolCallToOllama(part.FunctionCall))
			}
			if part.FunctionResponse != nil {
				flush()
				messages = append(messages, api.Message{
					Role:       "tool",
					Content:    functionResponseText(part.FunctionResponse),
					ToolName:   part.FunctionResponse.Name,
					ToolCallID: part.FunctionResponse.ID,
				})
			}
		}
		flush()
	}
	return messages
}

func appendNonEmpty(messages []api.Message, msg api.Message) []api.Message {
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return messages
	}
	return append(messages, msg)
}

// functionResponseText flattens a tool result map into the plain text form
// Ollama expects in tool messages.
func functionResponseText(result *genai.FunctionResponse) string {
	if result.Response == nil {
		return "Operation completed"
	}
	if errStr, ok := result.Response["error"].(string); ok && errStr != "" {
		return "Error: " + errStr
	}
	if val, ok := result.Response["content"].(string); ok && val != "" {
		return val
	}
	if data, ok := result.Response["data"]; ok {
		if jsonBytes, err := json.Marshal(data); err == nil {
			return string(jsonBytes)
		}
	}
	return "Operation completed"
}

// convertTools converts genai tool declarations to Ollama's format.
func (c *OllamaClient) convertTools() []api.Tool {
	var tools []api.Tool
	for _, tool := range c.tools {
		for _, decl := range tool.FunctionDeclarations {
			params := api.ToolFunctionParameters{
				Type:       "object",
				Properties: api.NewToolPropertiesMap(),
			}
			if decl.Parameters != nil {
				if len(decl.Parameters.Required) > 0 {
					params.Required = decl.Parameters.Required
				}
				for name, propSchema := range decl.Parameters.Properties {
					prop := api.ToolProperty{
						Description: propSchema.Description,
					}
					if propSchema.Type != "" {
						prop.Type = api.PropertyType{strings.ToLower(string(propSchema.Type))}
					}
					params.Properties.Set(name, prop)
				}
			}
			tools = append(tools, api.Tool{
				Type: "function",
				Function: api.ToolFunction{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  params,
				},
			})
		}
	}
	return tools
}

func ollamaToolCallToGenai(tc api.ToolCall, index int) *genai.FunctionCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
		if tc.Function.Index > 0 {
			id = fmt.Sprintf("call_%d", tc.Function.Index)
		}
	}
	return &genai.FunctionCall{
		ID:   id,
		Name: tc.Function.Name,
		Args: tc.Function.Arguments.ToMap(),
	}
}

func genaiToolCallToOllama(fc *genai.FunctionCall) api.ToolCall {
	args := api.NewToolCallFunctionArguments()
	for k, v := range fc.Args {
		args.Set(k, v)
	}
	return api.ToolCall{
		ID: fc.ID,
		Function: api.ToolCallFunction{
			Name:      fc.Name,
			Arguments: args,
		},
	}
}
