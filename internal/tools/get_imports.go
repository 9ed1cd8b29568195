package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GetImportsTool reports what one file imports and which files import it.
type GetImportsTool struct {
	env *Env
}

func (t *GetImportsTool) Name() string {
	return "get_imports"
}

func (t *GetImportsTool) Description() string {
	return "List the imports of a file and the files that depend on it. The path must be relative to the project root."
}

func (t *GetImportsTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"filepath": {
					Type:        genai.TypeString,
					Description: "Path of the file, relative to the project root",
				},
			},
			Required: []string{"filepath"},
		},
	}
}

func (t *GetImportsTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "filepath")
	if !ok || path == "" {
		return NewValidationError("filepath", "is required")
	}
	return nil
}

func (t *GetImportsTool) Execute(_ context.Context, args map[string]any) (ToolResult, error) {
	path, _ := GetString(args, "filepath")

	if !t.env.Index.HasFile(path) {
		res := NewErrorResult(fmt.Sprintf("file not in index: %s", path))
		t.env.Trace.record(t.Name(), path, false, len(res.Error), ReasonNotFound)
		return res, nil
	}

	imports := t.env.Index.Imports[path]
	dependents := t.env.Index.Dependents(path)

	var b strings.Builder
	if len(imports) == 0 {
		fmt.Fprintf(&b, "%s has no imports\n", path)
	} else {
		fmt.Fprintf(&b, "%s imports:\n", path)
		for _, imp := range imports {
			fmt.Fprintf(&b, "  %s\n", imp)
		}
	}
	if len(dependents) > 0 {
		b.WriteString("imported by:\n")
		for _, dep := range dependents {
			fmt.Fprintf(&b, "  %s\n", dep)
		}
	}
	content := strings.TrimRight(b.String(), "\n")
	t.env.Trace.record(t.Name(), path, true, len(content), ReasonOK)
	return NewSuccessResultWithData(content, map[string]any{
		"imports":     imports,
		"imported_by": dependents,
	}), nil
}
