package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/genai"

	"crev/internal/logging"
)

// SearchTextTool runs a regular expression over indexed files, optionally
// scoped by a glob on the file path.
type SearchTextTool struct {
	env *Env
}

func (t *SearchTextTool) Name() string {
	return "search_text"
}

func (t *SearchTextTool) Description() string {
	return "Search file contents with a regular expression. Pass file_pattern (a glob like 'internal/**/*.go') to narrow the scope. Results are capped at 100."
}

func (t *SearchTextTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pattern": {
					Type:        genai.TypeString,
					Description: "Regular expression to search for",
				},
				"file_pattern": {
					Type:        genai.TypeString,
					Description: "Optional glob restricting which files are searched",
				},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *SearchTextTool) Validate(args map[string]any) error {
	pattern, ok := GetString(args, "pattern")
	if !ok || pattern == "" {
		return NewValidationError("pattern", "is required")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return NewValidationError("pattern", err.Error())
	}
	if fp, ok := GetString(args, "file_pattern"); ok && fp != "" {
		if !doublestar.ValidatePattern(fp) {
			return NewValidationError("file_pattern", "malformed glob")
		}
	}
	return nil
}

func (t *SearchTextTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	pattern, _ := GetString(args, "pattern")
	filePattern := GetStringDefault(args, "file_pattern", "")

	re, err := regexp.Compile(pattern)
	if err != nil {
		res := NewErrorResult(fmt.Sprintf("invalid pattern: %s", err))
		t.env.Trace.record(t.Name(), pattern, false, len(res.Error), ReasonError)
		return res, nil
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
		if filePattern != "" {
			if ok, _ := doublestar.Match(filePattern, rel); !ok {
				continue
			}
		} else if !isSearchable(rel) {
			continue
		}
		data, rerr := t.env.readCached(rel)
		if rerr != nil {
			logging.Debug("search_text: skipping unreadable file", "file", rel, "error", rerr)
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

	if len(lines) == 0 {
		msg := fmt.Sprintf("no matches for %q", pattern)
		t.env.Trace.record(t.Name(), pattern, true, len(msg), ReasonEmpty)
		return NewSuccessResultWithData(msg, []string{}), nil
	}

	content := strings.Join(lines, "\n")
	reason := ReasonOK
	if capped {
		content += fmt.Sprintf("\n... results capped at %d matches", maxUsageResults)
		reason = ReasonTruncated
	}
	t.env.Trace.record(t.Name(), pattern, true, len(content), reason)
	return NewSuccessResultWithData(content, lines), nil
}
