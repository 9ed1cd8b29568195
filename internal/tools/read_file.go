package tools

import (
	"context"
	"errors"
	"fmt"
	"os"

	"crev/internal/security"

	"google.golang.org/genai"
)

const truncationMarker = "\n... [truncated: file exceeds size limit]"

// ReadFileTool returns the contents of one file inside the project root.
type ReadFileTool struct {
	env *Env
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the full contents of a file in the codebase. The path must be relative to the project root."
}

func (t *ReadFileTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"filepath": {
					Type:        genai.TypeString,
					Description: "Path of the file to read, relative to the project root",
				},
			},
			Required: []string{"filepath"},
		},
	}
}

func (t *ReadFileTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "filepath")
	if !ok || path == "" {
		return NewValidationError("filepath", "is required")
	}
	return nil
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	path, _ := GetString(args, "filepath")

	data, err := t.env.readCached(path)
	if err != nil {
		var res ToolResult
		reason := ReasonError
		switch {
		case errors.Is(err, security.ErrOutsideSandbox):
			reason = ReasonDenied
			res = NewErrorResult(fmt.Sprintf("access denied: %s is outside the project root", path))
		case errors.Is(err, os.ErrNotExist):
			reason = ReasonNotFound
			res = NewErrorResult(fmt.Sprintf("file not found: %s", path))
		default:
			res = NewErrorResult(fmt.Sprintf("could not read %s: %s", path, err))
		}
		t.env.Trace.record(t.Name(), path, false, len(res.Error), reason)
		return res, nil
	}

	content := string(data)
	reason := ReasonOK
	truncated := false
	if t.env.MaxFileBytes > 0 && len(content) > t.env.MaxFileBytes {
		content = content[:t.env.MaxFileBytes] + truncationMarker
		truncated = true
		reason = ReasonTruncated
	}
	t.env.Trace.record(t.Name(), path, true, len(content), reason)
	t.env.Trace.recordFile(path)

	return NewSuccessResultWithData(content, map[string]any{
		"filepath":  path,
		"truncated": truncated,
	}), nil
}
