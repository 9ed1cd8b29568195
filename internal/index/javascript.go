package index

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
)

// JavaScript and TypeScript are extracted with line-oriented patterns rather
// than a full parse. This catches the declaration forms that matter for
// navigation without pulling in per-dialect grammars.
var (
	jsImportRe  = regexp.MustCompile(`^\s*import\s+(?:.+\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	jsClassRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)
	jsFuncRe    = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`)
	jsArrowRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`)
	jsIfaceRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:interface|type|enum)\s+(\w+)`)
)

func extractJS(_ context.Context, source []byte, rel string) (fileFacts, error) {
	var facts fileFacts
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if m := jsImportRe.FindStringSubmatch(text); m != nil {
			facts.imports = append(facts.imports, m[1])
		}
		for _, m := range jsRequireRe.FindAllStringSubmatch(text, -1) {
			facts.imports = append(facts.imports, m[1])
		}
		if m := jsClassRe.FindStringSubmatch(text); m != nil {
			facts.symbols = append(facts.symbols, Symbol{Name: m[1], Kind: KindType, File: rel, Line: line})
			continue
		}
		if m := jsIfaceRe.FindStringSubmatch(text); m != nil {
			facts.symbols = append(facts.symbols, Symbol{Name: m[1], Kind: KindType, File: rel, Line: line})
			continue
		}
		if m := jsFuncRe.FindStringSubmatch(text); m != nil {
			facts.symbols = append(facts.symbols, Symbol{Name: m[1], Kind: KindFunction, File: rel, Line: line})
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(text); m != nil {
			facts.symbols = append(facts.symbols, Symbol{Name: m[1], Kind: KindFunction, File: rel, Line: line})
		}
	}
	return facts, scanner.Err()
}
