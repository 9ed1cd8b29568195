package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"crev/internal/logging"
)

// maxParseSize caps how large a file the symbol extractors will touch.
// Bigger files still appear in the tree and file list.
const maxParseSize = 2 << 20

// Builder constructs and refreshes indexes for a single project root.
type Builder struct {
	root           string
	ignorePatterns []string
}

func NewBuilder(root string, ignorePatterns []string) *Builder {
	return &Builder{root: root, ignorePatterns: ignorePatterns}
}

// Build walks the project root and produces a complete index. The walk order
// is lexical and the assembled maps are ordered by file then line, so two
// builds over the same tree produce identical indexes.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()
	files, err := discover(b.root, b.ignorePatterns)
	if err != nil {
		return nil, err
	}

	perFile := make(map[string]fileFacts)
	var unparsedFiles []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !IsSourceFile(f.rel) || f.size > maxParseSize {
			continue
		}
		facts, err := b.parseFile(ctx, f.rel)
		if err != nil {
			logging.Warn("index: failed to parse file", "file", f.rel, "error", err)
			unparsedFiles = append(unparsedFiles, f.rel)
			continue
		}
		perFile[f.rel] = facts
	}

	idx := assemble(b.root, files, perFile)
	idx.UnparsedFiles = unparsedFiles
	idx.Stats.BuildTime = time.Since(start)
	return idx, nil
}

// Update applies a set of changed root-relative paths to an existing index
// and returns a fresh index; the input index is not modified. An empty
// changed set returns an equal index. Deleted paths are purged, new and
// modified paths are reparsed.
func (b *Builder) Update(ctx context.Context, idx *Index, changed []string) (*Index, error) {
	fileSet := make(map[string]int64, len(idx.Files))
	for _, f := range idx.Files {
		fileSet[f] = 0
	}
	sizes := sizesFromTree(idx.Tree)
	perFile := factsByFile(idx, sizes)
	unparsedSet := make(map[string]bool, len(idx.UnparsedFiles))
	for _, rel := range idx.UnparsedFiles {
		unparsedSet[rel] = true
	}

	for _, rel := range dedupe(changed) {
		rel = filepath.ToSlash(filepath.Clean(rel))
		info, err := os.Stat(filepath.Join(b.root, rel))
		if err != nil || info.IsDir() {
			delete(fileSet, rel)
			delete(perFile, rel)
			delete(unparsedSet, rel)
			continue
		}
		fileSet[rel] = info.Size()
		delete(perFile, rel)
		delete(unparsedSet, rel)
		if !IsSourceFile(rel) || info.Size() > maxParseSize {
			continue
		}
		facts, perr := b.parseFile(ctx, rel)
		if perr != nil {
			logging.Warn("index: failed to parse file", "file", rel, "error", perr)
			unparsedSet[rel] = true
			continue
		}
		perFile[rel] = facts
	}

	// Re-stat sizes lazily only for changed files; unchanged entries keep
	// their recorded size from the prior tree.
	var files []discovered
	for rel, size := range fileSet {
		if size == 0 {
			size = sizes[rel]
		}
		files = append(files, discovered{rel: rel, size: size})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	out := assemble(b.root, files, perFile)
	for rel := range unparsedSet {
		out.UnparsedFiles = append(out.UnparsedFiles, rel)
	}
	sort.Strings(out.UnparsedFiles)
	out.Stats.BuildTime = idx.Stats.BuildTime
	return out, nil
}

func (b *Builder) parseFile(ctx context.Context, rel string) (fileFacts, error) {
	source, err := os.ReadFile(filepath.Join(b.root, rel))
	if err != nil {
		return fileFacts{}, err
	}
	return extractorFor(rel)(ctx, source, rel)
}

// assemble normalizes per-file facts into the final index form. Symbol lists
// are ordered by file then line so assembly is deterministic regardless of
// how perFile was populated.
func assemble(root string, files []discovered, perFile map[string]fileFacts) *Index {
	idx := &Index{
		Root:        root,
		Tree:        buildTree(root, files),
		Symbols:     make(map[string][]Symbol),
		Imports:     make(map[string][]string),
		TestMapping: make(map[string][]string),
	}
	for _, f := range files {
		idx.Files = append(idx.Files, f.rel)
	}

	sourceFiles := 0
	total := 0
	for _, f := range files {
		facts, ok := perFile[f.rel]
		if !ok {
			continue
		}
		sourceFiles++
		sort.SliceStable(facts.symbols, func(i, j int) bool {
			a, b := facts.symbols[i], facts.symbols[j]
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Name < b.Name
		})
		for _, sym := range facts.symbols {
			idx.Symbols[sym.Name] = append(idx.Symbols[sym.Name], sym)
			total++
		}
		if len(facts.imports) > 0 {
			idx.Imports[f.rel] = facts.imports
		}
	}

	mapTests(idx)
	idx.Stats = Stats{
		TotalFiles:    len(idx.Files),
		SourceFiles:   sourceFiles,
		UniqueSymbols: len(idx.Symbols),
		TotalSymbols:  total,
		TestFiles:     len(idx.TestMapping),
	}
	return idx
}

// factsByFile reconstructs the per-file view from an assembled index.
func factsByFile(idx *Index, sizes map[string]int64) map[string]fileFacts {
	out := make(map[string]fileFacts)
	for _, syms := range idx.Symbols {
		for _, s := range syms {
			f := out[s.File]
			f.symbols = append(f.symbols, s)
			out[s.File] = f
		}
	}
	for file, imports := range idx.Imports {
		f := out[file]
		f.imports = imports
		out[file] = f
	}
	skip := make(map[string]bool, len(idx.UnparsedFiles))
	for _, rel := range idx.UnparsedFiles {
		skip[rel] = true
	}
	// Source files with neither symbols nor imports still count as parsed,
	// unless extraction skipped them: files that failed to parse or were
	// over the size cap must not be reconstructed as parsed-empty.
	for _, rel := range idx.Files {
		if !IsSourceFile(rel) || skip[rel] || sizes[rel] > maxParseSize {
			continue
		}
		if _, ok := out[rel]; !ok {
			out[rel] = fileFacts{}
		}
	}
	return out
}

func sizesFromTree(tree *FileNode) map[string]int64 {
	sizes := make(map[string]int64)
	var walk func(n *FileNode)
	walk = func(n *FileNode) {
		if n == nil {
			return
		}
		if !n.IsDir {
			sizes[n.Path] = n.Size
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(tree)
	return sizes
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
