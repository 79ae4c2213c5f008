package digest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfBytesIsStableAndLengthBounded(t *testing.T) {
	a := OfBytes([]byte("hello world"))
	b := OfBytes([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.Len(t, a, Length)
}

func TestOfBytesDiffersOnContentChange(t *testing.T) {
	a := OfBytes([]byte("hello"))
	b := OfBytes([]byte("hello!"))
	assert.NotEqual(t, a, b)
}

func TestOfFileMatchesOfBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	got, err := OfFile(path)
	require.NoError(t, err)
	assert.Equal(t, OfBytes([]byte("content")), got)
}

func TestOfFileSymlinkDigestsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("content"), 0o644))
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	got, err := OfFile(link)
	require.NoError(t, err)
	assert.Equal(t, OfString(target), got)
	assert.NotEqual(t, OfBytes([]byte("content")), got)
}

func TestModTimeTruncatesToSeconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ts := time.Date(2026, 7, 31, 12, 0, 0, 500_000_000, time.UTC)
	require.NoError(t, os.Chtimes(path, ts, ts))

	got, err := ModTime(path)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC), got)
}

func TestFormatAndParseModTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	s := FormatModTime(ts)
	assert.Equal(t, "2026-07-31T12:00:00Z", s)

	parsed, err := ParseModTime(s)
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
}
