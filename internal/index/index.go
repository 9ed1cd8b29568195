// Package index builds a structural index of a codebase for AI navigation:
// file tree, symbol table, import graph and test-to-source mapping.
package index

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// SymbolKind classifies an indexed symbol.
type SymbolKind string

const (
	KindType     SymbolKind = "type"
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
)

// Symbol is one definition site of a named symbol. All paths are
// root-relative and slash-separated.
type Symbol struct {
	Name   string     `json:"name"`
	Kind   SymbolKind `json:"kind"`
	File   string     `json:"file"`
	Line   int        `json:"line"`
	Parent string     `json:"parent,omitempty"` // enclosing type for methods
}

// FileNode is one entry in the hierarchical file tree.
type FileNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	IsDir    bool        `json:"is_dir"`
	Size     int64       `json:"size,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

// Stats summarizes an index build.
type Stats struct {
	TotalFiles    int           `json:"total_files"`
	SourceFiles   int           `json:"source_files"`
	UniqueSymbols int           `json:"unique_symbols"`
	TotalSymbols  int           `json:"total_symbols"`
	TestFiles     int           `json:"test_files"`
	BuildTime     time.Duration `json:"build_time"`
}

// Index is the complete structural summary of a codebase. A name may be
// defined in several places; every location is retained.
type Index struct {
	Root        string              `json:"root"`
	Tree        *FileNode           `json:"tree"`
	Files       []string            `json:"files"` // sorted, root-relative
	Symbols     map[string][]Symbol `json:"symbols"`
	Imports     map[string][]string `json:"imports"`
	TestMapping map[string][]string `json:"test_mapping"`
	// UnparsedFiles lists source files the extractors gave up on, sorted.
	UnparsedFiles []string `json:"unparsed_files,omitempty"`
	Stats         Stats    `json:"stats"`
}

// Lookup returns every definition site for a symbol name, or nil.
func (idx *Index) Lookup(name string) []Symbol {
	return idx.Symbols[name]
}

// HasFile reports whether a root-relative path is part of the index.
func (idx *Index) HasFile(rel string) bool {
	i := sort.SearchStrings(idx.Files, rel)
	return i < len(idx.Files) && idx.Files[i] == rel
}

// Dependents returns the files whose import list references the given file,
// derived by scanning the import graph rather than stored, so it can never
// drift out of sync with Imports.
func (idx *Index) Dependents(rel string) []string {
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	noExt := strings.TrimSuffix(rel, path.Ext(rel))

	var out []string
	for _, file := range idx.Files {
		if file == rel {
			continue
		}
		for _, imp := range idx.Imports[file] {
			if importRefersTo(imp, stem, noExt) {
				out = append(out, file)
				break
			}
		}
	}
	return out
}

// importRefersTo reports whether an import string (a module path like "a.b"
// or "./util", or a package path) plausibly names the target file.
func importRefersTo(imp, stem, noExt string) bool {
	// Only a known source extension is a file extension; the last segment
	// of a dotted module path like "helpers.util" is part of the name.
	if IsSourceFile(imp) {
		imp = strings.TrimSuffix(imp, path.Ext(imp))
	}
	norm := strings.ReplaceAll(imp, ".", "/")
	norm = strings.TrimPrefix(norm, "//") // "./x" becomes "/x" after replacement
	norm = strings.TrimPrefix(norm, "/")
	if norm == "" {
		return false
	}
	if norm == noExt || strings.HasSuffix(noExt, "/"+norm) {
		return true
	}
	last := norm
	if i := strings.LastIndex(norm, "/"); i >= 0 {
		last = norm[i+1:]
	}
	return last == stem
}

// Summary renders a short human-readable description used in seed context.
func (idx *Index) Summary() string {
	var b strings.Builder
	b.WriteString("Codebase index\n")
	fmt.Fprintf(&b, "  Total files: %d\n", idx.Stats.TotalFiles)
	fmt.Fprintf(&b, "  Source files: %d\n", idx.Stats.SourceFiles)
	fmt.Fprintf(&b, "  Unique symbols: %d\n", idx.Stats.UniqueSymbols)
	fmt.Fprintf(&b, "  Symbol occurrences: %d\n", idx.Stats.TotalSymbols)
	fmt.Fprintf(&b, "  Test files mapped: %d\n", idx.Stats.TestFiles)
	if n := len(idx.UnparsedFiles); n > 0 {
		fmt.Fprintf(&b, "  Unparsed files: %d\n", n)
	}
	fmt.Fprintf(&b, "  Build time: %s\n", idx.Stats.BuildTime.Round(time.Millisecond))
	return b.String()
}

// RenderTree renders the file tree with box-drawing connectors.
func (idx *Index) RenderTree() string {
	if idx.Tree == nil {
		return ""
	}
	lines := []string{idx.Tree.Name}
	for i, child := range idx.Tree.Children {
		renderNode(child, "", i == len(idx.Tree.Children)-1, &lines)
	}
	return strings.Join(lines, "\n")
}

func renderNode(n *FileNode, prefix string, last bool, lines *[]string) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	*lines = append(*lines, prefix+connector+n.Name)
	for i, child := range n.Children {
		renderNode(child, childPrefix, i == len(n.Children)-1, lines)
	}
}
