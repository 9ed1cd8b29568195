// Package session persists review conversations between runs so a follow-up
// review of the same project can build on what was already explored.
package session

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// FormatVersion is bumped whenever the on-disk layout changes shape.
// Older files are rejected rather than half-read.
const FormatVersion = 1

// Session is the durable state of one named review conversation.
type Session struct {
	FormatVersion int    `json:"format_version"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProjectRoot   string `json:"project_root"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// Iteration counts completed reviews in this session.
	Iteration int    `json:"iteration"`
	Model     string `json:"model,omitempty"`

	History []SerializedContent `json:"history"`

	// LastReview holds the final text of the most recent review.
	LastReview string `json:"last_review,omitempty"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// New creates an empty session for a project root.
func New(projectRoot, name string) *Session {
	now := time.Now().UTC()
	return &Session{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		Name:          name,
		ProjectRoot:   projectRoot,
		CreatedAt:     now,
		LastActive:    now,
	}
}

// Touch updates the activity timestamp.
func (s *Session) Touch() {
	s.LastActive = time.Now().UTC()
}

// AppendHistory serializes and appends conversation contents.
func (s *Session) AppendHistory(contents ...*genai.Content) {
	for _, c := range contents {
		if c == nil {
			continue
		}
		s.History = append(s.History, SerializeContent(c))
	}
}

// GenaiHistory rebuilds the conversation in API form.
func (s *Session) GenaiHistory() []*genai.Content {
	out := make([]*genai.Content, 0, len(s.History))
	for _, sc := range s.History {
		out = append(out, DeserializeContent(sc))
	}
	return out
}

// TrimHistory drops the oldest entries beyond max, keeping the tail.
func (s *Session) TrimHistory(max int) {
	if max > 0 && len(s.History) > max {
		s.History = append([]SerializedContent(nil), s.History[len(s.History)-max:]...)
	}
}

// SerializedContent represents a serializable conversation content.
type SerializedContent struct {
	Role  string           `json:"role"`
	Parts []SerializedPart `json:"parts"`
}

// SerializedPart represents a serializable content part.
type SerializedPart struct {
	Type         string          `json:"type"` // "text", "function_call", "function_response"
	Text         string          `json:"text,omitempty"`
	FunctionCall *SerializedFunc `json:"function_call,omitempty"`
	FunctionResp *SerializedFunc `json:"function_response,omitempty"`
}

// SerializedFunc represents a serializable function call or response.
type SerializedFunc struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// SerializeContent converts a genai.Content to SerializedContent.
func SerializeContent(content *genai.Content) SerializedContent {
	parts := make([]SerializedPart, len(content.Parts))
	for i, part := range content.Parts {
		parts[i] = serializePart(part)
	}
	return SerializedContent{
		Role:  string(content.Role),
		Parts: parts,
	}
}

func serializePart(part *genai.Part) SerializedPart {
	if part.FunctionCall != nil {
		return SerializedPart{
			Type: "function_call",
			FunctionCall: &SerializedFunc{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			},
		}
	}
	if part.FunctionResponse != nil {
		return SerializedPart{
			Type: "function_response",
			FunctionResp: &SerializedFunc{
				ID:       part.FunctionResponse.ID,
				Name:     part.FunctionResponse.Name,
				Response: part.FunctionResponse.Response,
			},
		}
	}
	return SerializedPart{Type: "text", Text: part.Text}
}

// DeserializeContent converts a SerializedContent back to genai.Content.
func DeserializeContent(sc SerializedContent) *genai.Content {
	parts := make([]*genai.Part, 0, len(sc.Parts))
	for _, sp := range sc.Parts {
		switch sp.Type {
		case "function_call":
			if sp.FunctionCall != nil {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   sp.FunctionCall.ID,
					Name: sp.FunctionCall.Name,
					Args: sp.FunctionCall.Args,
				}})
			}
		case "function_response":
			if sp.FunctionResp != nil {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       sp.FunctionResp.ID,
					Name:     sp.FunctionResp.Name,
					Response: sp.FunctionResp.Response,
				}})
			}
		default:
			parts = append(parts, &genai.Part{Text: sp.Text})
		}
	}
	return &genai.Content{Role: sc.Role, Parts: parts}
}

// Info summarizes a stored session for listings.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ProjectRoot  string    `json:"project_root"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	Iteration    int       `json:"iteration"`
	MessageCount int       `json:"message_count"`
}

func (s *Session) Info() Info {
	return Info{
		ID:           s.ID,
		Name:         s.Name,
		ProjectRoot:  s.ProjectRoot,
		CreatedAt:    s.CreatedAt,
		LastActive:   s.LastActive,
		Iteration:    s.Iteration,
		MessageCount: len(s.History),
	}
}
