package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// skipDirs are directory names never worth indexing.
var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".idea":         true,
	".vscode":       true,
	"dist":          true,
	"build":         true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".tox":          true,
	".eggs":         true,
}

// SkipDir reports whether a directory name is excluded from indexing.
func SkipDir(name string) bool {
	return skipDirs[name] || strings.HasPrefix(name, ".")
}

type discovered struct {
	rel  string
	size int64
}

// discover walks root depth first in lexical order and returns every file
// that survives the directory skip list, the repo's .gitignore, and any
// caller-supplied glob patterns. The returned slice is sorted by construction.
func discover(root string, ignorePatterns []string) ([]discovered, error) {
	var matcher *ignore.GitIgnore
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		matcher = ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}

	var files []discovered
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		for _, pat := range ignorePatterns {
			if ok, _ := doublestar.Match(pat, rel); ok {
				return nil
			}
		}
		info, ierr := d.Info()
		var size int64
		if ierr == nil {
			size = info.Size()
		}
		files = append(files, discovered{rel: rel, size: size})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// buildTree assembles the hierarchical file tree from a sorted file list.
func buildTree(root string, files []discovered) *FileNode {
	top := &FileNode{Name: filepath.Base(root), Path: ".", IsDir: true}
	dirs := map[string]*FileNode{".": top}

	dirFor := func(dir string) *FileNode {
		if n, ok := dirs[dir]; ok {
			return n
		}
		// Create missing ancestors top down so children stay sorted.
		parts := strings.Split(dir, "/")
		cur := top
		for i := range parts {
			prefix := strings.Join(parts[:i+1], "/")
			n, ok := dirs[prefix]
			if !ok {
				n = &FileNode{Name: parts[i], Path: prefix, IsDir: true}
				cur.Children = append(cur.Children, n)
				dirs[prefix] = n
			}
			cur = n
		}
		return cur
	}

	for _, f := range files {
		dir := "."
		if i := strings.LastIndex(f.rel, "/"); i >= 0 {
			dir = f.rel[:i]
		}
		parent := dirFor(dir)
		parent.Children = append(parent.Children, &FileNode{
			Name: f.rel[strings.LastIndex(f.rel, "/")+1:],
			Path: f.rel,
			Size: f.size,
		})
	}
	sortTree(top)
	return top
}

// sortTree orders every directory's children directories first, then files,
// each alphabetically, so renders are stable across builds.
func sortTree(n *FileNode) {
	for _, c := range n.Children {
		if c.IsDir {
			sortTree(c)
		}
	}
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
}
