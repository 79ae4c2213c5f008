// Package pattern is the sync core's pattern-matcher facade: it expands
// user-supplied ignore patterns into their "match at any depth" form and
// matches scan-relative paths against include and ignore pattern sets.
//
// Include-pattern matching is delegated to
// github.com/bmatcuk/doublestar/v4, a cross-platform glob engine.
// Ignore-pattern matching needs leading-dot-inclusive, directory-aware
// gitignore semantics, so it is delegated to go-git's own gitignore
// engine instead.
package pattern

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ExpandIgnorePattern applies the facade's expansion rule exactly once:
// a pattern that already starts with "**/" is left as-is; otherwise both
// the original and a "**/"-prefixed sibling are emitted, so a bare name
// like ".DS_Store" matches at any depth without the user writing the
// "**/" prefix themselves.
func ExpandIgnorePattern(raw string) []string {
	if strings.HasPrefix(raw, "**/") {
		return []string{raw}
	}
	return []string{raw, "**/" + raw}
}

// ExpandIgnorePatterns expands a whole pattern list, preserving order and
// dropping duplicates produced by the expansion.
func ExpandIgnorePatterns(raw []string) []string {
	seen := make(map[string]bool, len(raw)*2)
	var out []string
	for _, p := range raw {
		for _, expanded := range ExpandIgnorePattern(p) {
			if seen[expanded] {
				continue
			}
			seen[expanded] = true
			out = append(out, expanded)
		}
	}
	return out
}

// Matcher matches scan-relative paths against a set of include patterns
// (verbatim glob, via doublestar) and a set of ignore patterns (gitignore
// semantics, via go-git), as produced by the settings projection.
type Matcher struct {
	includes []string
	ignore   gitignore.Matcher
}

// New builds a Matcher from raw include patterns (matched verbatim) and
// raw ignore patterns (expanded with ExpandIgnorePatterns before use).
func New(includePatterns, ignorePatterns []string) *Matcher {
	expanded := ExpandIgnorePatterns(ignorePatterns)
	patterns := make([]gitignore.Pattern, 0, len(expanded))
	for _, p := range expanded {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	return &Matcher{
		includes: append([]string(nil), includePatterns...),
		ignore:   gitignore.NewMatcher(patterns),
	}
}

// MatchesInclude reports whether relPath (slash-separated, relative to the
// scan root) matches at least one include pattern verbatim.
func (m *Matcher) MatchesInclude(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range m.includes {
		ok, err := doublestar.Match(p, relPath)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// IsIgnored reports whether relPath matches an ignore pattern. isDir must
// be true when relPath names a directory, so directory-only patterns
// (trailing "/") and pruning decisions behave correctly.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	parts := splitPath(filepath.ToSlash(relPath))
	if len(parts) == 0 {
		return false
	}
	return m.ignore.Match(parts, isDir)
}

// Included reports whether relPath should be part of the tracked set: it
// matches an include pattern and matches no ignore pattern.
func (m *Matcher) Included(relPath string, isDir bool) bool {
	if m.IsIgnored(relPath, isDir) {
		return false
	}
	return m.MatchesInclude(relPath)
}

func splitPath(p string) []string {
	if p == "" || p == "." {
		return nil
	}
	p = strings.TrimPrefix(p, "/")
	raw := strings.Split(p, "/")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}
