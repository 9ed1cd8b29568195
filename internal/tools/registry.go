package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/genai"
)

// Registry manages the collection of available tools. The set is closed
// after construction; the model can never add to it.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns all tool declarations for Gemini, in name order so
// the request payload is stable across runs.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	declarations := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		declarations = append(declarations, r.tools[name].Declaration())
	}
	return declarations
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Dispatch validates and executes a tool call by name. A call the model got
// wrong, an unknown tool or bad arguments, comes back as an error result the
// model can read and correct; a Go error is reserved for internal failures.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) ToolResult {
	tool, ok := r.Get(name)
	if !ok {
		return NewErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	if err := tool.Validate(args); err != nil {
		return NewErrorResult(fmt.Sprintf("invalid arguments for %s: %s", name, err))
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("%s failed: %s", name, err))
	}
	return result
}
