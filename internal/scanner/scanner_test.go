package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/confsync/pkg/pattern"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanMatchesIncludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "CLAUDE.md"), "hello")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip me")

	m := pattern.New([]string{"CLAUDE.md"}, nil)
	entries, err := Scan(dir, m)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CLAUDE.md", entries[0].RelPath)
}

func TestScanPrunesIgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "pkg", "a.md"), "x")
	writeFile(t, filepath.Join(dir, "keep.md"), "y")

	m := pattern.New([]string{"**/*.md"}, []string{"node_modules"})
	entries, err := Scan(dir, m)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.md", entries[0].RelPath)
}

func TestScanNeverDescendsIntoSymlinkedDirectory(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	writeFile(t, filepath.Join(realDir, "a.md"), "x")
	require.NoError(t, os.Symlink(realDir, filepath.Join(dir, "linked")))

	m := pattern.New([]string{"**/*.md"}, nil)
	entries, err := Scan(dir, m)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.RelPath, "linked")
	}
}

func TestScanRejectsPathWithSymlinkAncestor(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	writeFile(t, filepath.Join(realDir, "a.md"), "x")
	linkPath := filepath.Join(dir, "linked")
	require.NoError(t, os.Symlink(realDir, linkPath))

	m := pattern.New([]string{"**/*.md"}, nil)
	entries, err := Scan(dir, m)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "linked/a.md", e.RelPath)
	}
}
