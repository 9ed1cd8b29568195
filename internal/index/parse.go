package index

import (
	"context"
	"path"

	sitter "github.com/smacker/go-tree-sitter"
)

// fileFacts is everything extracted from a single source file.
type fileFacts struct {
	symbols []Symbol
	imports []string
}

// extractor parses one file's contents into symbols and imports.
type extractor func(ctx context.Context, source []byte, rel string) (fileFacts, error)

// extractorFor returns the extractor for a file, or nil for unsupported types.
func extractorFor(rel string) extractor {
	switch path.Ext(rel) {
	case ".go":
		return extractGo
	case ".py":
		return extractPython
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return extractJS
	default:
		return nil
	}
}

// IsSourceFile reports whether the indexer knows how to parse the file.
func IsSourceFile(rel string) bool {
	return extractorFor(rel) != nil
}

// parseTree runs a tree-sitter parse with a fresh parser. Parsers are not
// safe for concurrent use, so each call gets its own.
func parseTree(ctx context.Context, lang *sitter.Language, source []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	p.SetLanguage(lang)
	return p.ParseCtx(ctx, nil, source)
}

// nodeText returns the source text spanned by a node.
func nodeText(n *sitter.Node, source []byte) string {
	return string(source[n.StartByte():n.EndByte()])
}

// nodeLine returns the 1-based line of a node.
func nodeLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
