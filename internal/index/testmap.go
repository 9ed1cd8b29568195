package index

import (
	"path"
	"sort"
	"strings"
)

// mapTests links test files to the source files they most plausibly cover.
// The heuristic is name based: strip the conventional test affix from the
// test file's stem and match source files sharing that stem. Files under a
// tests/ directory with no stem match fall back to any source file whose
// stem appears in the test name.
func mapTests(idx *Index) {
	stems := make(map[string][]string) // stem to source files
	for _, rel := range idx.Files {
		if !IsSourceFile(rel) || isTestFile(rel) {
			continue
		}
		stem := fileStem(rel)
		stems[stem] = append(stems[stem], rel)
	}

	for _, rel := range idx.Files {
		if !isTestFile(rel) {
			continue
		}
		target := testTargetStem(rel)
		matches := append([]string(nil), stems[target]...)
		if len(matches) == 0 {
			for stem, files := range stems {
				if len(stem) >= 4 && strings.Contains(fileStem(rel), stem) {
					matches = append(matches, files...)
				}
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		idx.TestMapping[rel] = matches
	}
}

// isTestFile recognizes the common naming conventions across the indexed
// languages: test_x.py, x_test.go, x.test.ts, x.spec.js, plus anything
// under a test/ or tests/ directory.
func isTestFile(rel string) bool {
	if !IsSourceFile(rel) {
		return false
	}
	stem := fileStem(rel)
	if strings.HasPrefix(stem, "test_") || strings.HasSuffix(stem, "_test") {
		return true
	}
	if strings.HasSuffix(stem, ".test") || strings.HasSuffix(stem, ".spec") {
		return true
	}
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if part == "test" || part == "tests" || part == "__tests__" {
			return true
		}
	}
	return false
}

// testTargetStem derives the covered source stem from a test file name.
func testTargetStem(rel string) string {
	stem := fileStem(rel)
	stem = strings.TrimPrefix(stem, "test_")
	stem = strings.TrimSuffix(stem, "_test")
	stem = strings.TrimSuffix(stem, ".test")
	stem = strings.TrimSuffix(stem, ".spec")
	return stem
}

func fileStem(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
