package tools

import (
	"context"

	"google.golang.org/genai"
)

// FileTreeTool renders the indexed file tree.
type FileTreeTool struct {
	env *Env
}

func (t *FileTreeTool) Name() string {
	return "get_file_tree"
}

func (t *FileTreeTool) Description() string {
	return "Show the directory structure of the codebase being reviewed."
}

func (t *FileTreeTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}

func (t *FileTreeTool) Validate(map[string]any) error {
	return nil
}

func (t *FileTreeTool) Execute(_ context.Context, _ map[string]any) (ToolResult, error) {
	tree := t.env.Index.RenderTree()
	t.env.Trace.record(t.Name(), "", true, len(tree), ReasonOK)
	return NewSuccessResult(tree), nil
}
