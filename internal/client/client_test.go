package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"crev/internal/config"
)

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	max := 2 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 4; attempt++ {
		d := CalculateBackoff(base, attempt, max)
		assert.GreaterOrEqual(t, d, base*time.Duration(1<<uint(attempt)))
		assert.Greater(t, d, prev/2) // jitter never collapses the delay
		prev = d
	}

	// Far past the cap, the delay stays near max (max + 25% jitter).
	d := CalculateBackoff(base, 20, max)
	assert.GreaterOrEqual(t, d, max)
	assert.LessOrEqual(t, d, max+max/4)
}

func TestRetryableErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"api 429", &APIError{StatusCode: 429, Message: "slow down"}, true},
		{"api 503", &APIError{StatusCode: 503, Message: "overloaded"}, true},
		{"api 400", &APIError{StatusCode: 400, Message: "bad request"}, false},
		{"api 401", &APIError{StatusCode: 401, Message: "unauthorized"}, false},
		{"wrapped 429", fmt.Errorf("call failed: %w", &APIError{StatusCode: 429}), true},
		{"untyped rate limit", errors.New("Rate Limit exceeded"), true},
		{"untyped refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), true},
		{"plain", errors.New("invalid argument"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, IsRetryableError(tc.err))
		})
	}
}

func TestWrapUnreachable(t *testing.T) {
	t.Parallel()
	err := wrapUnreachable(errors.New("dial tcp 127.0.0.1:11434: connection refused"))
	assert.ErrorIs(t, err, ErrEngineUnreachable)

	err = wrapUnreachable(errors.New("invalid request"))
	assert.NotErrorIs(t, err, ErrEngineUnreachable)
	assert.Nil(t, wrapUnreachable(nil))
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "Looking at "},
					{Text: "the diff."},
					{FunctionCall: &genai.FunctionCall{Name: "read_file", Args: map[string]any{"filepath": "a.py"}}},
				},
			},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 30,
		},
	}

	parsed := parseResponse(resp)
	assert.Equal(t, "Looking at the diff.", parsed.Text)
	require.True(t, parsed.HasFunctionCalls())
	assert.Equal(t, "read_file", parsed.FunctionCalls[0].Name)
	assert.Equal(t, int32(120), parsed.InputTokens)
	assert.Equal(t, int32(30), parsed.OutputTokens)
}

func TestParseResponseEmpty(t *testing.T) {
	t.Parallel()
	parsed := parseResponse(nil)
	assert.Empty(t, parsed.Text)
	assert.False(t, parsed.HasFunctionCalls())

	parsed = parseResponse(&genai.GenerateContentResponse{})
	assert.Empty(t, parsed.Text)
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.API.Provider = "mystery"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOllamaHistoryConversion(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.API.Provider = "ollama"
	cfg.Model.Name = "qwen2.5-coder"
	c, err := NewOllamaClient(cfg, nil)
	require.NoError(t, err)
	c.SetSystemInstruction("you are a reviewer")

	history := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: "review this"}}},
		{Role: genai.RoleModel, Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{ID: "call_0", Name: "read_file", Args: map[string]any{"filepath": "a.py"}}},
		}},
		{Role: genai.RoleUser, Parts: []*genai.Part{
			{FunctionResponse: &genai.FunctionResponse{ID: "call_0", Name: "read_file", Response: map[string]any{"success": true, "content": "x = 1"}}},
		}},
	}

	messages := c.convertHistory(history)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "review this", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, "read_file", messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", messages[3].Role)
	assert.Equal(t, "x = 1", messages[3].Content)
	assert.Equal(t, "read_file", messages[3].ToolName)
}

func TestFunctionResponseText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello", functionResponseText(&genai.FunctionResponse{
		Response: map[string]any{"success": true, "content": "hello"},
	}))
	assert.Equal(t, "Error: nope", functionResponseText(&genai.FunctionResponse{
		Response: map[string]any{"success": false, "error": "nope"},
	}))
	assert.Equal(t, "Operation completed", functionResponseText(&genai.FunctionResponse{}))
}
