package policy

import (
	"context"
	"path/filepath"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// ExclusionFilter denies deletion of records matching any of
// CleanPolicy.ExcludeGlobs. Patterns use filepath.Match syntax plus a
// "**" recursive-directory extension (e.g., "*.important", "backup/**").
type ExclusionFilter struct {
	patterns []string
}

// NewExclusionFilter creates a filter that blocks paths matching any
// pattern. Empty patterns means nothing is excluded.
func NewExclusionFilter(patterns []string) *ExclusionFilter {
	return &ExclusionFilter{patterns: patterns}
}

func (f *ExclusionFilter) Evaluate(_ context.Context, rec core.PathRecord, _ core.EnvSnapshot) Decision {
	if len(f.patterns) == 0 {
		return Decision{Allow: true, Reason: "no_exclusions"}
	}

	baseName := filepath.Base(rec.Path)

	for _, pattern := range f.patterns {
		if matched, err := filepath.Match(pattern, baseName); err == nil && matched {
			return Decision{Allow: false, Reason: "excluded:" + pattern}
		}

		if matched, err := filepath.Match(pattern, rec.Path); err == nil && matched {
			return Decision{Allow: false, Reason: "excluded:" + pattern}
		}

		if matchRecursive(pattern, rec.Path) {
			return Decision{Allow: false, Reason: "excluded:" + pattern}
		}
	}

	return Decision{Allow: true, Reason: "not_excluded"}
}

// matchRecursive handles ** patterns for recursive directory matching.
// Pattern "backup/**" matches any file under a "backup" directory.
func matchRecursive(pattern, path string) bool {
	if !containsDoubleStar(pattern) {
		return false
	}

	parts := splitAtDoubleStar(pattern)
	if len(parts) != 2 {
		return false
	}

	prefix := parts[0]
	suffix := parts[1]

	prefix = filepath.Clean(prefix)
	if prefix == "." {
		prefix = ""
	}

	if prefix != "" {
		if !hasPathPrefix(path, prefix) {
			return false
		}
	}

	if suffix == "" || suffix == "/" {
		return true
	}

	suffix = filepath.Clean(suffix)
	baseName := filepath.Base(path)
	matched, _ := filepath.Match(suffix, baseName)
	return matched
}

func containsDoubleStar(pattern string) bool {
	for i := 0; i < len(pattern)-1; i++ {
		if pattern[i] == '*' && pattern[i+1] == '*' {
			return true
		}
	}
	return false
}

func splitAtDoubleStar(pattern string) []string {
	for i := 0; i < len(pattern)-1; i++ {
		if pattern[i] == '*' && pattern[i+1] == '*' {
			return []string{pattern[:i], pattern[i+2:]}
		}
	}
	return []string{pattern}
}

// hasPathPrefix checks if path contains prefix as a directory component.
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	pathParts := splitPath(path)
	prefixParts := splitPath(prefix)

	if len(prefixParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(prefixParts); i++ {
		match := true
		for j, pp := range prefixParts {
			if pathParts[i+j] != pp {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPath(path string) []string {
	var parts []string
	for path != "" && path != "/" && path != "." {
		dir, file := filepath.Split(path)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		path = filepath.Clean(dir)
		if path == "/" || path == "." {
			break
		}
	}
	return parts
}
