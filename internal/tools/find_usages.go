package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"crev/internal/index"
	"crev/internal/logging"
)

// maxUsageResults caps find_usages and search_text output so one call can
// never flood the model's context.
const maxUsageResults = 100

// FindUsagesTool finds textual references to a symbol across the indexed
// source files, cross-checked against the import graph so files that import
// a definition site are listed even when the grep misses them.
type FindUsagesTool struct {
	env *Env
}

func (t *FindUsagesTool) Name() string {
	return "find_usages"
}

func (t *FindUsagesTool) Description() string {
	return "Find lines that reference a symbol across the codebase, plus files that import its definition sites. Results are capped at 100."
}

func (t *FindUsagesTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"symbol_name": {
					Type:        genai.TypeString,
					Description: "Exact name of the symbol to find references to",
				},
			},
			Required: []string{"symbol_name"},
		},
	}
}

func (t *FindUsagesTool) Validate(args map[string]any) error {
	name, ok := GetString(args, "symbol_name")
	if !ok || name == "" {
		return NewValidationError("symbol_name", "is required")
	}
	return nil
}

func (t *FindUsagesTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	name, _ := GetString(args, "symbol_name")
	t.env.Trace.recordSymbol(name)

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		res := NewErrorResult(fmt.Sprintf("cannot search for %q: %s", name, err))
		t.env.Trace.record(t.Name(), name, false, len(res.Error), ReasonError)
		return res, nil
	}

	defSites := make(map[string]bool)
	for _, s := range t.env.Index.Lookup(name) {
		defSites[s.File] = true
	}

	var lines []string
	capped := false
	for _, rel := range t.env.Index.Files {
		if err := ctx.Err(); err != nil {
			return ToolResult{}, err
		}
		if capped {
			break
		}
		if !isSearchable(rel) {
			continue
		}
		data, rerr := t.env.readCached(rel)
		if rerr != nil {
			logging.Debug("find_usages: skipping unreadable file", "file", rel, "error", rerr)
			continue
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			text := scanner.Text()
			if !re.MatchString(text) {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(text)))
			if len(lines) >= maxUsageResults {
				capped = true
				break
			}
		}
	}

	// Importers of a definition site use the symbol even if the grep was
	// capped before reaching them.
	importers := make(map[string]bool)
	for def := range defSites {
		for _, dep := range t.env.Index.Dependents(def) {
			importers[dep] = true
		}
	}

	if len(lines) == 0 && len(importers) == 0 {
		msg := fmt.Sprintf("no usages found for %q", name)
		t.env.Trace.record(t.Name(), name, true, len(msg), ReasonEmpty)
		return NewSuccessResultWithData(msg, []string{}), nil
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if capped {
		fmt.Fprintf(&b, "... results capped at %d matches\n", maxUsageResults)
	}
	if len(importers) > 0 {
		b.WriteString("importing files:")
		for _, rel := range t.env.Index.Files {
			if importers[rel] {
				b.WriteString(" " + rel)
			}
		}
		b.WriteByte('\n')
	}
	content := strings.TrimRight(b.String(), "\n")
	reason := ReasonOK
	if capped {
		reason = ReasonTruncated
	}
	t.env.Trace.record(t.Name(), name, true, len(content), reason)
	return NewSuccessResultWithData(content, lines), nil
}

// isSearchable limits content scans to files the index knows how to parse,
// which keeps binary assets out of grep results.
func isSearchable(rel string) bool {
	return index.IsSourceFile(rel)
}
