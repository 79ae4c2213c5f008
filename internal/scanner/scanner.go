// Package scanner enumerates files beneath a root that match a target's
// enabled patterns, skipping ignored paths and never descending into
// symlinked directories.
//
// Adapted from a filepath-walk-plus-glob-matching discovery pass and an
// ancestor-symlink rejection check, trimmed to the one check this package
// needs: no pluggable loaders, no audit trail, no batch/concurrent
// discovery.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fulmenhq/confsync/pkg/pattern"
)

// Entry is one matched path beneath the scan root.
type Entry struct {
	// RelPath is slash-separated and relative to the scan root.
	RelPath   string
	IsSymlink bool
}

// Scan walks root and returns every regular file or symlink whose relative
// path is Included by matcher. Directories matching an ignore pattern are
// pruned without descent; a path is rejected if any ancestor path
// component is itself a symlink.
func Scan(root string, matcher *pattern.Matcher) ([]Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root: %w", err)
	}

	var entries []Entry
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == absRoot {
			return nil
		}
		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		relSlash := filepath.ToSlash(relPath)

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		isSymlink := info.Mode()&os.ModeSymlink != 0

		if d.IsDir() {
			if isSymlink {
				// Never descend into a symlinked directory.
				return filepath.SkipDir
			}
			if matcher.IsIgnored(relSlash, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if hasSymlinkAncestor(absRoot, relPath) {
			return nil
		}
		if !matcher.Included(relSlash, false) {
			return nil
		}
		entries = append(entries, Entry{RelPath: relSlash, IsSymlink: isSymlink})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: walk %s: %w", root, err)
	}
	return entries, nil
}

// hasSymlinkAncestor reports whether any directory component between
// absRoot and absRoot/relPath (exclusive of the final path itself) is a
// symlink.
func hasSymlinkAncestor(absRoot, relPath string) bool {
	dir := filepath.Dir(relPath)
	if dir == "." || dir == "" {
		return false
	}
	parts := splitAll(dir)
	current := absRoot
	for _, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			return false
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

func splitAll(p string) []string {
	p = filepath.ToSlash(p)
	var parts []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
