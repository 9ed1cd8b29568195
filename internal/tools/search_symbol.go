package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// SearchSymbolTool looks up every definition site of a symbol name.
type SearchSymbolTool struct {
	env *Env
}

func (t *SearchSymbolTool) Name() string {
	return "search_symbol"
}

func (t *SearchSymbolTool) Description() string {
	return "Find where a function, method, type or class named exactly symbol_name is defined. Returns every definition site."
}

func (t *SearchSymbolTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"symbol_name": {
					Type:        genai.TypeString,
					Description: "Exact name of the symbol to look up",
				},
			},
			Required: []string{"symbol_name"},
		},
	}
}

func (t *SearchSymbolTool) Validate(args map[string]any) error {
	name, ok := GetString(args, "symbol_name")
	if !ok || name == "" {
		return NewValidationError("symbol_name", "is required")
	}
	return nil
}

func (t *SearchSymbolTool) Execute(_ context.Context, args map[string]any) (ToolResult, error) {
	name, _ := GetString(args, "symbol_name")
	t.env.Trace.recordSymbol(name)

	syms := t.env.Index.Lookup(name)
	if len(syms) == 0 {
		msg := fmt.Sprintf("no definitions found for %q", name)
		t.env.Trace.record(t.Name(), name, true, len(msg), ReasonEmpty)
		return NewSuccessResultWithData(msg, []map[string]any{}), nil
	}

	var b strings.Builder
	data := make([]map[string]any, 0, len(syms))
	for _, s := range syms {
		qualified := s.Name
		if s.Parent != "" {
			qualified = s.Parent + "." + s.Name
		}
		fmt.Fprintf(&b, "%s:%d: %s %s\n", s.File, s.Line, s.Kind, qualified)
		data = append(data, map[string]any{
			"name":   s.Name,
			"kind":   string(s.Kind),
			"file":   s.File,
			"line":   s.Line,
			"parent": s.Parent,
		})
	}
	content := strings.TrimRight(b.String(), "\n")
	t.env.Trace.record(t.Name(), name, true, len(content), ReasonOK)
	return NewSuccessResultWithData(content, data), nil
}
