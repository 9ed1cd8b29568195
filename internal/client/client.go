// Package client provides the model backends the review engine talks to.
// Requests are stateless: the full conversation is resubmitted on every turn.
package client

import (
	"context"

	"google.golang.org/genai"
)

// Response is one complete model turn.
type Response struct {
	// Text is the concatenated text output of the turn.
	Text string

	// FunctionCalls holds the navigation calls the model requested, in order.
	FunctionCalls []*genai.FunctionCall

	InputTokens  int32
	OutputTokens int32
}

// HasFunctionCalls reports whether the model asked for more navigation.
func (r *Response) HasFunctionCalls() bool {
	return len(r.FunctionCalls) > 0
}

// Client is a conversation backend.
type Client interface {
	// SendMessage appends the message to the outgoing request after the
	// given history and returns the model's turn. The history must not
	// already contain the message.
	SendMessage(ctx context.Context, history []*genai.Content, message string) (*Response, error)

	// SendFunctionResponse appends the tool results to the outgoing
	// request after the given history and returns the model's next turn.
	// The history must end with the model turn that requested the calls
	// and must not already contain the results; a duplicated response
	// breaks the provider's call/response pairing.
	SendFunctionResponse(ctx context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*Response, error)

	// SetTools declares the function set the model may call.
	SetTools(tools []*genai.Tool)

	// SetSystemInstruction sets the system prompt for subsequent requests.
	SetSystemInstruction(instruction string)

	// GetModel returns the model identifier in use.
	GetModel() string

	// Close releases backend resources.
	Close() error
}
