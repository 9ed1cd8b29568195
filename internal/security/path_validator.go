package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideSandbox is returned when a requested path resolves outside the
// project root. This is a security boundary: resolution failures of any kind
// (symlink loops, unreadable parents) are treated as outside, never as inside.
var ErrOutsideSandbox = errors.New("path outside project root")

// PathValidator confines file access to a single project root. All symlinks
// and ".." segments are resolved before the containment check, so a path that
// lexically sits under the root but points elsewhere is still rejected.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator for the given project root.
// The root itself is canonicalized once; if that fails the validator still
// works but rejects everything that cannot be resolved.
func NewPathValidator(root string) *PathValidator {
	clean := filepath.Clean(root)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		clean = resolved
	}
	return &PathValidator{root: clean}
}

// Root returns the canonical project root.
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve validates a path (absolute or relative to the root) and returns its
// canonical absolute form. Any path that escapes the root returns
// ErrOutsideSandbox.
func (v *PathValidator) Resolve(requested string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("empty path: %w", ErrOutsideSandbox)
	}
	if strings.Contains(requested, "\x00") {
		return "", fmt.Errorf("null byte in path: %w", ErrOutsideSandbox)
	}

	p := filepath.Clean(requested)
	if !filepath.IsAbs(p) {
		p = filepath.Join(v.root, p)
	}

	// Resolve symlinks atomically. A nonexistent leaf is fine (NotFound is the
	// caller's concern), but its parent chain must still resolve cleanly so a
	// symlinked directory cannot smuggle access outside the root.
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if !os.IsNotExist(err) {
			// Symlink loop, permission failure, etc. Fail closed.
			return "", fmt.Errorf("resolving %s: %w", requested, ErrOutsideSandbox)
		}
		resolvedParent, perr := filepath.EvalSymlinks(filepath.Dir(p))
		if perr != nil {
			return "", fmt.Errorf("resolving %s: %w", requested, ErrOutsideSandbox)
		}
		resolved = filepath.Join(resolvedParent, filepath.Base(p))
	}

	if !v.isWithinRoot(resolved) {
		return "", fmt.Errorf("%s: %w", requested, ErrOutsideSandbox)
	}
	return resolved, nil
}

// ResolveFile is Resolve plus a check that the path names an existing regular file.
func (v *PathValidator) ResolveFile(requested string) (string, error) {
	abs, err := v.Resolve(requested)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("not a file: %s", requested)
	}
	return abs, nil
}

// Rel returns the root-relative, slash-separated form of an already
// validated absolute path.
func (v *PathValidator) Rel(abs string) string {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (v *PathValidator) isWithinRoot(abs string) bool {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
